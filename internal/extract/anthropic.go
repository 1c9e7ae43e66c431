package extract

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/techpack-cli/pkg/anthropic"
)

// AnthropicModel extracts fields with a Claude messages call carrying the
// tech pack as a PDF document block.
type AnthropicModel struct {
	Client    anthropic.Client
	Model     string
	MaxTokens int64
	CacheTTL  string
}

// NewAnthropicModel creates an AnthropicModel.
func NewAnthropicModel(client anthropic.Client, modelID string, maxTokens int64) *AnthropicModel {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicModel{
		Client:    client,
		Model:     modelID,
		MaxTokens: maxTokens,
		CacheTTL:  "5m",
	}
}

// Extract implements Model.
func (m *AnthropicModel) Extract(ctx context.Context, req ExtractRequest) (string, error) {
	temp := 0.0
	resp, err := m.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     m.Model,
		MaxTokens: m.MaxTokens,
		System:    anthropic.CachedSystem(SystemPrompt(req.Fields), m.CacheTTL),
		Messages: []anthropic.Message{{
			Role:      "user",
			Content:   userPrompt(req.Key),
			Documents: [][]byte{req.Document},
		}},
		Temperature: &temp,
	})
	if err != nil {
		if anthropic.IsRateLimited(err) {
			return "", eris.Wrapf(ErrRateLimited, "model call for %s: %v", req.Key, err)
		}
		return "", eris.Wrapf(err, "extract: model call for %s", req.Key)
	}
	resp.Usage.LogCost(m.Model, req.Key)
	return resp.Text(), nil
}

// OfflineModel answers without a network call. Every field comes back
// empty and flagged for review, which lets the whole pipeline run without
// credentials.
type OfflineModel struct{}

// Extract implements Model.
func (OfflineModel) Extract(_ context.Context, req ExtractRequest) (string, error) {
	type field struct {
		Value       string `json:"value"`
		Rationale   string `json:"rationale"`
		NeedsReview bool   `json:"needs_review"`
	}
	fields := make(map[string]field, req.Fields.Len())
	for _, name := range req.Fields.Names() {
		fields[name] = field{Rationale: "offline mode", NeedsReview: true}
	}
	b, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return "", eris.Wrap(err, "extract: offline response")
	}
	return string(b), nil
}
