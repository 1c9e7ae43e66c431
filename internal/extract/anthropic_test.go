package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/techpack-cli/pkg/anthropic"
)

type fakeClient struct {
	got  anthropic.MessageRequest
	resp *anthropic.MessageResponse
	err  error
}

func (c *fakeClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	c.got = req
	return c.resp, c.err
}

func TestAnthropicModel_BuildsDocumentRequest(t *testing.T) {
	fc := &fakeClient{resp: &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: goodReply}},
	}}
	m := NewAnthropicModel(fc, "claude-sonnet-4-5-20250929", 0)

	text, err := m.Extract(context.Background(), ExtractRequest{
		Key:      "ABC123",
		Document: []byte("%PDF-1.4"),
		Fields:   testFields(),
	})
	require.NoError(t, err)
	assert.Equal(t, goodReply, text)

	assert.Equal(t, int64(4096), fc.got.MaxTokens)
	require.Len(t, fc.got.System, 1)
	assert.Contains(t, fc.got.System[0].Text, "- Fabric Content")
	require.NotNil(t, fc.got.System[0].CacheControl)
	require.Len(t, fc.got.Messages, 1)
	assert.Contains(t, fc.got.Messages[0].Content, "ABC123")
	assert.Equal(t, [][]byte{[]byte("%PDF-1.4")}, fc.got.Messages[0].Documents)
}

func TestAnthropicModel_RateLimitMapped(t *testing.T) {
	apiErr := &sdk.Error{
		StatusCode: http.StatusTooManyRequests,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil),
		Response:   &http.Response{StatusCode: http.StatusTooManyRequests},
	}
	fc := &fakeClient{err: eris.Wrap(apiErr, "anthropic: create message")}
	m := NewAnthropicModel(fc, "claude-sonnet-4-5-20250929", 1024)

	_, err := m.Extract(context.Background(), ExtractRequest{Key: "A", Fields: testFields()})
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
}

func TestAnthropicModel_OtherErrorsNotRateLimited(t *testing.T) {
	fc := &fakeClient{err: eris.New("anthropic: create message: 500")}
	m := NewAnthropicModel(fc, "claude-sonnet-4-5-20250929", 1024)

	_, err := m.Extract(context.Background(), ExtractRequest{Key: "A", Fields: testFields()})
	require.Error(t, err)
	assert.False(t, IsRateLimited(err))
}
