package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"dealrooms/models"
	"dealrooms/utils"
)

// AnalysisEngine is the external text-analysis backend. utils.RaftAIClient
// is the production implementation; tests swap in a stub.
type AnalysisEngine interface {
	AnalyzeText(ctx context.Context, prompt, idempotencyKey string) (string, error)
}

// fallbackReply is posted when the engine fails for any reason. Command
// failures never surface as errors to the sender.
const fallbackReply = "Sorry, I encountered an error processing your request. Please try again."

const engineTimeout = 5 * time.Second

// aiCommand describes one vocabulary entry: how much conversation context
// it reads and how the reply is headed.
type aiCommand struct {
	window  int // 0 means last message only
	heading string
}

var aiCommands = map[string]aiCommand{
	"summarize":    {window: 20, heading: "## Summary"},
	"risks":        {window: 30, heading: "## Risk Analysis"},
	"draft":        {window: 0, heading: "## Draft Reply"},
	"action-items": {window: 20, heading: "## Action Items"},
	"translate":    {window: 0, heading: "## Translation"},
	"compliance":   {window: 30, heading: "## Compliance Check"},
	"redact":       {window: 10, heading: "## Redaction Suggestions"},
	"brief":        {window: 50, heading: "## Deal Brief"},
}

// AIService turns in-band /raftai commands into engine calls and appends the
// result as the reserved raftai identity.
type AIService struct {
	messages *MessageService
	engine   AnalysisEngine
	logger   *logrus.Logger
}

func NewAIService(messages *MessageService, engine AnalysisEngine, logger *logrus.Logger) *AIService {
	return &AIService{messages: messages, engine: engine, logger: logger}
}

// HandleCommand processes one command message. It always appends a reply to
// the room: the analysis, the help text, or the fallback apology.
func (s *AIService) HandleCommand(ctx context.Context, room *models.Room, callerID, text string) {
	command, argument := parseCommand(text)

	def, ok := aiCommands[command]
	if !ok {
		s.reply(ctx, room.ID, helpText(), models.AIReplyPayload{
			Command:     command,
			RequestedBy: callerID,
		})
		return
	}

	payload := models.AIReplyPayload{
		Command:     command,
		Argument:    argument,
		RequestedBy: callerID,
	}
	payload.IdempotencyKey = utils.IdempotencyKey(command, callerID, payload)

	window := def.window
	if window == 0 {
		window = 1
	}
	transcript, err := s.messages.RecentWindow(ctx, room.ID, window)
	if err != nil {
		s.fail(ctx, room.ID, payload, fmt.Errorf("load window: %w", err))
		return
	}
	if len(transcript) == 0 {
		s.reply(ctx, room.ID, def.heading+"\n\nThere are no messages to analyze yet.", payload)
		return
	}

	prompt := buildPrompt(command, argument, room, transcript)

	engineCtx, cancel := context.WithTimeout(ctx, engineTimeout)
	defer cancel()
	result, err := s.engine.AnalyzeText(engineCtx, prompt, payload.IdempotencyKey)
	if err != nil {
		s.fail(ctx, room.ID, payload, fmt.Errorf("%w: %v", ErrExternalEngine, err))
		return
	}

	s.reply(ctx, room.ID, def.heading+"\n\n"+strings.TrimSpace(result), payload)
}

func (s *AIService) reply(ctx context.Context, roomID, body string, payload models.AIReplyPayload) {
	if _, err := s.messages.AppendAIReply(ctx, roomID, body, payload); err != nil {
		s.logger.WithError(err).WithField("room_id", roomID).Error("Failed to append AI reply")
	}
}

func (s *AIService) fail(ctx context.Context, roomID string, payload models.AIReplyPayload, err error) {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"room_id": roomID,
		"command": payload.Command,
	}).Error("AI command failed")
	sentry.CaptureException(err)
	s.reply(ctx, roomID, fallbackReply, payload)
}

// parseCommand splits "/raftai draft formal" into ("draft", "formal").
func parseCommand(text string) (command, argument string) {
	rest := strings.TrimSpace(strings.TrimPrefix(text, strings.TrimSpace(CommandPrefix)))
	if rest == "" {
		return "", ""
	}
	parts := strings.SplitN(rest, " ", 2)
	command = strings.ToLower(parts[0])
	if len(parts) == 2 {
		argument = strings.TrimSpace(parts[1])
	}
	return command, argument
}

func buildPrompt(command, argument string, room *models.Room, transcript []models.Message) string {
	var b strings.Builder

	switch command {
	case "summarize":
		b.WriteString("Summarize the following deal conversation. Highlight decisions, commitments and open points:\n\n")
	case "risks":
		b.WriteString("Analyze the following conversation for business and legal risks. List each risk with severity:\n\n")
	case "draft":
		tone := argument
		if tone == "" {
			tone = "professional"
		}
		fmt.Fprintf(&b, "Draft a %s reply to the last message in this conversation:\n\n", tone)
	case "action-items":
		b.WriteString("Extract the action items from the following conversation. For each, name the owner if one is stated:\n\n")
	case "translate":
		language := argument
		if language == "" {
			language = "English"
		}
		fmt.Fprintf(&b, "Translate the following message to %s:\n\n", language)
	case "compliance":
		b.WriteString("Review the following conversation for regulatory compliance concerns (securities, KYC/AML, marketing rules):\n\n")
	case "redact":
		b.WriteString("Identify sensitive information (personal data, credentials, confidential figures) in the following messages that should be redacted:\n\n")
	case "brief":
		fmt.Fprintf(&b, "Prepare a concise brief of this %s for a stakeholder who has not followed it:\n\n", room.Name)
	}

	for _, msg := range transcript {
		fmt.Fprintf(&b, "%s: %s\n", msg.SenderID, msg.Body)
	}
	return b.String()
}

func helpText() string {
	return strings.Join([]string{
		"## RaftAI Commands",
		"",
		"- `/raftai summarize` — summarize the recent conversation",
		"- `/raftai risks` — analyze the conversation for risks",
		"- `/raftai draft [tone]` — draft a reply to the last message",
		"- `/raftai action-items` — extract action items",
		"- `/raftai translate [language]` — translate the last message",
		"- `/raftai compliance` — check for compliance concerns",
		"- `/raftai redact` — suggest redactions for sensitive content",
		"- `/raftai brief` — prepare a stakeholder brief",
	}, "\n")
}
