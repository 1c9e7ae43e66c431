package artifact

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/techpack-cli/internal/model"
)

// LocalStore keeps artifacts as files in one directory.
type LocalStore struct {
	dir string
}

// NewLocal creates the directory if needed and returns a LocalStore over it.
func NewLocal(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: resolve %s", dir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, eris.Wrapf(err, "artifact: create %s", abs)
	}
	return &LocalStore{dir: abs}, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.dir, Name(key))
}

func (s *LocalStore) Stat(_ context.Context, key string) (*model.Artifact, error) {
	p := s.path(key)
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: stat %s", key)
	}
	return &model.Artifact{
		Key:        key,
		Name:       Name(key),
		Location:   p,
		Size:       info.Size(),
		ModifiedAt: info.ModTime().UTC(),
	}, nil
}

// Save writes through a temp file and rename so a crash never leaves a
// truncated document under the final name.
func (s *LocalStore) Save(ctx context.Context, key string, data []byte) (*model.Artifact, error) {
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return nil, eris.Wrap(err, "artifact: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "artifact: write %s", key)
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrapf(err, "artifact: close %s", key)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return nil, eris.Wrapf(err, "artifact: rename %s", key)
	}
	return s.Stat(ctx, key)
}

func (s *LocalStore) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	return data, eris.Wrapf(err, "artifact: load %s", key)
}

func (s *LocalStore) Link(_ context.Context, key string) (string, error) {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(s.path(key))}
	return u.String(), nil
}
