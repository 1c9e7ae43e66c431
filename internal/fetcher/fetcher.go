// Package fetcher downloads tech pack documents over HTTP and FTP and reads
// XLSX style tables.
package fetcher

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
)

// MaxDocumentBytes bounds a single downloaded document.
const MaxDocumentBytes = 100 << 20

// ErrNotFound is returned when the source has no document at the URL.
var ErrNotFound = eris.New("document not found")

// Fetcher defines the interface for downloading remote documents.
type Fetcher interface {
	// Download fetches the URL and returns the response body. The caller
	// closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Fetch downloads url through f and reads the whole document into memory.
func Fetch(ctx context.Context, f Fetcher, url string) ([]byte, error) {
	body, err := f.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(body, MaxDocumentBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "fetch: read body")
	}
	if len(data) > MaxDocumentBytes {
		return nil, eris.Errorf("fetch: document at %s exceeds %d bytes", url, MaxDocumentBytes)
	}
	return data, nil
}
