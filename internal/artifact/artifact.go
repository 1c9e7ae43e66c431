// Package artifact stores tech pack documents and decides whether a cached
// copy is fresh enough to reuse.
package artifact

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/techpack-cli/internal/model"
)

// Store persists artifacts by work item key. Implementations must be safe
// for concurrent use by acquisition workers.
type Store interface {
	// Stat returns the artifact metadata, or nil when none is stored.
	Stat(ctx context.Context, key string) (*model.Artifact, error)
	Save(ctx context.Context, key string, data []byte) (*model.Artifact, error)
	Load(ctx context.Context, key string) ([]byte, error)
	// Link returns a URL a reviewer can open to view the document.
	Link(ctx context.Context, key string) (string, error)
}

// Name derives the deterministic object name for a key. Characters outside
// [A-Za-z0-9._-] become underscores.
func Name(key string) string {
	var sb strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String() + ".pdf"
}

// Cache applies the freshness window to a Store.
type Cache struct {
	Store  Store
	Window time.Duration

	now func() time.Time
}

// NewCache returns a Cache whose artifacts stay fresh for windowDays.
func NewCache(store Store, windowDays int) *Cache {
	return &Cache{
		Store:  store,
		Window: time.Duration(windowDays) * 24 * time.Hour,
		now:    time.Now,
	}
}

// IsFresh reports whether a is younger than the window.
func (c *Cache) IsFresh(a *model.Artifact) bool {
	if a == nil {
		return false
	}
	return c.now().Sub(a.ModifiedAt) < c.Window
}

// Fresh returns the stored artifact for key and whether it can be reused.
// A missing artifact is (nil, false, nil).
func (c *Cache) Fresh(ctx context.Context, key string) (*model.Artifact, bool, error) {
	a, err := c.Store.Stat(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return a, c.IsFresh(a), nil
}
