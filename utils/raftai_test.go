package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(serverURL string) *RaftAIClient {
	return &RaftAIClient{
		apiURL:     serverURL,
		apiKey:     "test-key",
		httpClient: &http.Client{Timeout: time.Second},
	}
}

func TestAnalyzeTextSendsHeadersAndParsesResult(t *testing.T) {
	var gotAuth, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")

		var req analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "summarize this", req.Prompt)

		json.NewEncoder(w).Encode(analyzeResponse{Success: true, Result: "done"})
	}))
	defer server.Close()

	client := testClient(server.URL)
	result, err := client.AnalyzeText(context.Background(), "summarize this", "key-123")
	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "key-123", gotKey)
}

func TestAnalyzeTextErrorPaths(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Idempotency-Key") {
		case "fail-status":
			w.WriteHeader(http.StatusBadGateway)
		case "fail-success":
			json.NewEncoder(w).Encode(analyzeResponse{Success: false, Error: "quota exceeded"})
		}
	}))
	defer server.Close()

	client := testClient(server.URL)

	_, err := client.AnalyzeText(context.Background(), "p", "fail-status")
	assert.ErrorContains(t, err, "status 502")

	_, err = client.AnalyzeText(context.Background(), "p", "fail-success")
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestAnalyzeTextHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := testClient(server.URL).AnalyzeText(ctx, "p", "k")
	assert.Error(t, err)
}

func TestIdempotencyKeyShape(t *testing.T) {
	key := IdempotencyKey("summarize", "alice", map[string]string{"a": "b"})
	assert.Len(t, key, 64)

	// Different inputs produce different keys.
	other := IdempotencyKey("risks", "alice", map[string]string{"a": "b"})
	assert.NotEqual(t, key, other)

	otherCaller := IdempotencyKey("summarize", "bob", map[string]string{"a": "b"})
	assert.NotEqual(t, key, otherCaller)
}
