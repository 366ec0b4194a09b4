package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealrooms/models"
)

type stubEngine struct {
	result     string
	err        error
	lastPrompt string
	lastKey    string
	calls      int
}

func (e *stubEngine) AnalyzeText(_ context.Context, prompt, idempotencyKey string) (string, error) {
	e.calls++
	e.lastPrompt = prompt
	e.lastKey = idempotencyKey
	return e.result, e.err
}

func newTestAI(env *testEnv, engine AnalysisEngine) *AIService {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	return NewAIService(env.messages, engine, quiet)
}

func lastMessage(t *testing.T, env *testEnv, roomID string) models.Message {
	t.Helper()
	msgs, err := env.messages.GetMessages(context.Background(), roomID, 1)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	return msgs[0]
}

func TestHandleCommandAppendsHeadedReply(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.createDealRoom(t, "alice", "bob")
	engine := &stubEngine{result: "Both sides agreed on valuation."}
	ai := newTestAI(env, engine)

	_, err := env.messages.SendMessage(context.Background(), roomID, "alice", "we agree on 10M", models.MessageTypeText, models.MessagePayload{})
	require.NoError(t, err)

	room, err := env.rooms.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	ai.HandleCommand(context.Background(), room, "alice", "/raftai summarize")

	reply := lastMessage(t, env, roomID)
	assert.Equal(t, models.SenderRaftAI, reply.SenderID)
	assert.Equal(t, models.MessageTypeAIReply, reply.Type)
	assert.True(t, strings.HasPrefix(reply.Body, "## Summary"))
	assert.Contains(t, reply.Body, "Both sides agreed on valuation.")

	require.NotNil(t, reply.Payload.AI)
	assert.Equal(t, "summarize", reply.Payload.AI.Command)
	assert.Equal(t, "alice", reply.Payload.AI.RequestedBy)
	assert.Len(t, reply.Payload.AI.IdempotencyKey, 64)
	assert.Equal(t, reply.Payload.AI.IdempotencyKey, engine.lastKey)

	assert.Contains(t, engine.lastPrompt, "alice: we agree on 10M")
}

func TestHandleCommandFallbackOnEngineFailure(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.createDealRoom(t, "alice", "bob")
	engine := &stubEngine{err: errors.New("engine down")}
	ai := newTestAI(env, engine)

	_, err := env.messages.SendMessage(context.Background(), roomID, "alice", "analyze this", models.MessageTypeText, models.MessagePayload{})
	require.NoError(t, err)

	room, err := env.rooms.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	ai.HandleCommand(context.Background(), room, "alice", "/raftai risks")

	reply := lastMessage(t, env, roomID)
	assert.Equal(t, models.MessageTypeAIReply, reply.Type)
	assert.Equal(t, fallbackReply, reply.Body)
}

func TestHandleCommandUnknownPostsHelp(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.createDealRoom(t, "alice", "bob")
	engine := &stubEngine{}
	ai := newTestAI(env, engine)

	room, err := env.rooms.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	ai.HandleCommand(context.Background(), room, "alice", "/raftai dance")

	reply := lastMessage(t, env, roomID)
	assert.Contains(t, reply.Body, "## RaftAI Commands")
	assert.Contains(t, reply.Body, "/raftai summarize")
	assert.Zero(t, engine.calls, "unknown commands never reach the engine")
}

func TestHandleCommandEmptyRoom(t *testing.T) {
	env := newTestEnv(t)
	engine := &stubEngine{result: "irrelevant"}
	ai := newTestAI(env, engine)

	roomID := env.createDealRoom(t, "alice", "bob")
	room, err := env.rooms.GetRoom(context.Background(), roomID)
	require.NoError(t, err)

	// Only the creation system message exists; the window is empty.
	ai.HandleCommand(context.Background(), room, "alice", "/raftai summarize")

	reply := lastMessage(t, env, roomID)
	assert.Contains(t, reply.Body, "no messages to analyze")
	assert.Zero(t, engine.calls)
}

func TestDraftUsesToneArgument(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.createDealRoom(t, "alice", "bob")
	engine := &stubEngine{result: "Dear partner, ..."}
	ai := newTestAI(env, engine)

	_, err := env.messages.SendMessage(context.Background(), roomID, "bob", "can you lower the price?", models.MessageTypeText, models.MessagePayload{})
	require.NoError(t, err)

	room, err := env.rooms.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	ai.HandleCommand(context.Background(), room, "alice", "/raftai draft formal")

	assert.Contains(t, engine.lastPrompt, "Draft a formal reply")
	reply := lastMessage(t, env, roomID)
	assert.True(t, strings.HasPrefix(reply.Body, "## Draft Reply"))
	require.NotNil(t, reply.Payload.AI)
	assert.Equal(t, "formal", reply.Payload.AI.Argument)
}

func TestCommandDispatchFromSendMessage(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.createDealRoom(t, "alice", "bob")
	engine := &stubEngine{result: "Summary text."}
	ai := newTestAI(env, engine)
	env.messages.SetCommandHandler(ai)

	// Seed conversation, then send the command in-band.
	_, err := env.messages.SendMessage(context.Background(), roomID, "bob", "terms look fine", models.MessageTypeText, models.MessagePayload{})
	require.NoError(t, err)
	_, err = env.messages.SendMessage(context.Background(), roomID, "alice", "/raftai summarize", models.MessageTypeText, models.MessagePayload{})
	require.NoError(t, err)

	// Dispatch is async; wait for the reply to land.
	require.Eventually(t, func() bool {
		msgs, err := env.messages.GetMessages(context.Background(), roomID, 5)
		if err != nil {
			return false
		}
		for _, m := range msgs {
			if m.Type == models.MessageTypeAIReply {
				return true
			}
		}
		return false
	}, waitTimeout, pollInterval)
}

func TestParseCommand(t *testing.T) {
	cmd, arg := parseCommand("/raftai summarize")
	assert.Equal(t, "summarize", cmd)
	assert.Empty(t, arg)

	cmd, arg = parseCommand("/raftai translate Spanish")
	assert.Equal(t, "translate", cmd)
	assert.Equal(t, "Spanish", arg)

	cmd, arg = parseCommand("/raftai DRAFT friendly but firm")
	assert.Equal(t, "draft", cmd)
	assert.Equal(t, "friendly but firm", arg)
}
