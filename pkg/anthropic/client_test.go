package anthropic

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"
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

func TestCreateMessage_MockClient(t *testing.T) {
	mc := new(MockClient)
	req := MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 512,
		System:    CachedSystem("extract fields", "5m"),
		Messages:  []Message{{Role: "user", Content: "ABC123", Documents: [][]byte{[]byte("%PDF-1.4")}}},
	}
	mc.On("CreateMessage", mock.Anything, req).Return(&MessageResponse{
		ID:      "msg_1",
		Content: []ContentBlock{{Type: "text", Text: `{"fields":{}}`}},
	}, nil)

	resp, err := mc.CreateMessage(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"fields":{}}`, resp.Text())
	mc.AssertExpectations(t)
}

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "first "},
		{Type: "tool_use", Text: "ignored"},
		{Type: "text", Text: "second"},
	}}
	assert.Equal(t, "first second", resp.Text())

	var nilResp *MessageResponse
	assert.Equal(t, "", nilResp.Text())
}

func TestCachedSystem(t *testing.T) {
	blocks := CachedSystem("You extract garment tech pack fields.", "1h")
	require.Len(t, blocks, 1)
	assert.Equal(t, "You extract garment tech pack fields.", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestToSDKMessages_DocumentsPrecedeText(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "extract", Documents: [][]byte{[]byte("%PDF-1.4 a"), []byte("%PDF-1.4 b")}},
		{Role: "assistant", Content: "ok"},
	})
	require.Len(t, msgs, 2)
	require.Len(t, msgs[0].Content, 3)
	assert.NotNil(t, msgs[0].Content[0].OfDocument)
	assert.NotNil(t, msgs[0].Content[1].OfDocument)
	assert.NotNil(t, msgs[0].Content[2].OfText)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[1].Role)
}

func TestToSDKSystemBlocks(t *testing.T) {
	out := toSDKSystemBlocks([]SystemBlock{
		{Text: "plain"},
		{Text: "cached", CacheControl: &CacheControl{TTL: "1h"}},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "plain", out[0].Text)
	assert.Equal(t, "cached", out[1].Text)
	assert.Equal(t, sdk.CacheControlEphemeralTTL("1h"), out[1].CacheControl.TTL)
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(&sdk.Error{StatusCode: 429}))
	assert.True(t, IsRateLimited(eris.Wrap(&sdk.Error{StatusCode: 429}, "anthropic: create message")))
	assert.False(t, IsRateLimited(&sdk.Error{StatusCode: 500}))
	assert.False(t, IsRateLimited(errors.New("429 too many requests")))
	assert.False(t, IsRateLimited(nil))
}

func TestEstimateCost_Sonnet(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 18.00, usage.EstimateCost("claude-sonnet-4-5-20250929"), 0.001)
}

func TestEstimateCost_WithCache(t *testing.T) {
	usage := TokenUsage{
		InputTokens:              500_000,
		OutputTokens:             100_000,
		CacheCreationInputTokens: 200_000,
		CacheReadInputTokens:     300_000,
	}
	// 0.40 + 0.40 + 0.20 + 0.024
	assert.InDelta(t, 1.024, usage.EstimateCost("claude-haiku-4-5-20251001"), 0.001)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000}
	assert.Equal(t, 0.0, usage.EstimateCost("unknown-model"))
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		TokenUsage{InputTokens: 100, OutputTokens: 50}.LogCost("claude-haiku-4-5-20251001", "ABC123")
	})
}
