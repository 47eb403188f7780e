package anthropic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MessageResponse), args.Error(1)
}

func textResponse(s string) *MessageResponse {
	return &MessageResponse{
		Content: []ContentBlock{{Type: "text", Text: s}},
		Usage:   TokenUsage{InputTokens: 100, OutputTokens: 50},
	}
}

func TestAnnotate(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("CreateMessage", ctx, mock.MatchedBy(func(req MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			len(req.Messages) == 1 &&
			req.System != ""
	})).Return(textResponse(`[
		{"index": 0, "isAgency": true, "confidence": 0.9},
		{"index": 2, "isAgency": false, "confidence": 0.8}
	]`), nil).Once()

	records, usage, err := Annotate(ctx, mc, AnnotateRequest{
		Model:        "claude-haiku-4-5-20251001",
		MaxTokens:    1024,
		Task:         "Is this post from an agency?",
		OutputFields: []string{"isAgency", "confidence"},
		Items: []IndexedItem{
			{Index: 0, Value: "we build brands"},
			{Index: 2, Value: "my startup just raised"},
		},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, true, records[0]["isAgency"])
	assert.Equal(t, float64(0), records[0]["index"].(float64))
	assert.Equal(t, int64(100), usage.InputTokens)
	mc.AssertExpectations(t)
}

func TestAnnotatePromptContainsItems(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	var captured MessageRequest
	mc.On("CreateMessage", ctx, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(MessageRequest)
		}).
		Return(textResponse(`[]`), nil).Once()

	_, _, err := Annotate(ctx, mc, AnnotateRequest{
		Model:        "m",
		MaxTokens:    10,
		Task:         "classify",
		OutputFields: []string{"label"},
		Items: []IndexedItem{
			{Index: 3, Value: "hello world"},
			{Index: 5, Value: map[string]any{"name": "Ada"}},
		},
	})
	require.NoError(t, err)

	body := captured.Messages[0].Content
	assert.Contains(t, body, "[3]: hello world")
	assert.Contains(t, body, `[5]: {"name":"Ada"}`)
	assert.Contains(t, captured.System, "classify")
	assert.Contains(t, captured.System, "- label:")
}

func TestParseIndexedReplyWrapped(t *testing.T) {
	records, err := parseIndexedReply(`{"results": [{"index": 1, "x": "y"}]}`)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "y", records[0]["x"])
}

func TestParseIndexedReplySingleObject(t *testing.T) {
	records, err := parseIndexedReply(`{"index": 4, "x": "y"}`)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestParseIndexedReplyFenced(t *testing.T) {
	records, err := parseIndexedReply("```json\n[{\"index\": 0}]\n```")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestParseIndexedReplyGarbage(t *testing.T) {
	_, err := parseIndexedReply("sorry, I cannot")
	assert.Error(t, err)

	_, err = parseIndexedReply(`{"no": "array"}`)
	assert.Error(t, err)
}

func TestEstimateCost(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 4.80, u.EstimateCost("claude-haiku-4-5-20251001"), 0.001)
	assert.Zero(t, u.EstimateCost("unknown-model"))
}
