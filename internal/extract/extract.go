// Package extract turns acquired tech pack documents into canonical field
// bundles. Calls to the model are serialized with a fixed inter-call delay
// and bounded retries for parse failures and rate limits.
package extract

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/techpack-cli/internal/model"
	"github.com/sells-group/techpack-cli/pkg/anthropic"
)

var (
	// ErrParse marks a response that held no usable JSON object.
	ErrParse = eris.New("extract: unparseable response")
	// ErrRateLimited marks a model call rejected for rate limiting.
	ErrRateLimited = eris.New("extract: rate limited")
)

// ExtractRequest is one document handed to the model.
type ExtractRequest struct {
	Key      string
	Document []byte
	Fields   *model.FieldSet
}

// Model is the extraction model service. It returns free-form text that is
// expected to contain one JSON object.
type Model interface {
	Extract(ctx context.Context, req ExtractRequest) (string, error)
}

// IsRateLimited reports whether err signals that the model service is
// throttling requests.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRateLimited) || anthropic.IsRateLimited(err)
}
