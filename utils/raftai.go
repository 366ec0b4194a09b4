package utils

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dealrooms/config"
)

// RaftAIClient talks to the external RaftAI analysis engine. Every call is
// context-bounded and carries an idempotency key so retries do not produce
// duplicate side effects engine-side.
type RaftAIClient struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

func NewRaftAIClient() *RaftAIClient {
	cfg := config.AppConfig.RaftAI
	return &RaftAIClient{
		apiURL: cfg.APIURL,
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type analyzeRequest struct {
	Prompt string `json:"prompt"`
}

type analyzeResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
	Error   string `json:"error,omitempty"`
}

// AnalyzeText sends a natural-language prompt to the engine and returns the
// raw result text.
func (c *RaftAIClient) AnalyzeText(ctx context.Context, prompt, idempotencyKey string) (string, error) {
	body, err := json.Marshal(analyzeRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/analyze/text", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("raftai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("raftai returned status %d", resp.StatusCode)
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("raftai response decode failed: %w", err)
	}
	if !parsed.Success {
		return "", fmt.Errorf("raftai error: %s", parsed.Error)
	}

	return parsed.Result, nil
}

// IdempotencyKey derives a stable key from the command type, the caller and
// the serialized payload, bucketed to the minute so a retried call within
// the same window dedupes while a genuine repeat later does not.
func IdempotencyKey(commandType, callerID string, payload interface{}) string {
	serialized, _ := json.Marshal(payload)
	bucket := time.Now().UTC().Unix() / 60
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", commandType, callerID, serialized, bucket)))
	return hex.EncodeToString(sum[:])
}
