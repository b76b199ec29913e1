package uploadcache

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// JSONStore keeps the cache as an indented JSON object in a single file.
type JSONStore struct {
	path string
}

// NewJSONStore returns a store backed by the file at path. The file need not
// exist yet.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the backing file path.
func (s *JSONStore) Path() string { return s.path }

// Load reads the cache file. A missing file is an empty cache.
func (s *JSONStore) Load(_ context.Context) (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "uploadcache: read %s", s.path)
	}

	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrapf(err, "uploadcache: decode %s", s.path)
	}
	// A literal null decodes to a nil map.
	if entries == nil {
		entries = map[string]string{}
	}
	return entries, nil
}

// Save writes entries to a temp file beside the target and renames it into
// place, so the target is always a complete document.
func (s *JSONStore) Save(_ context.Context, entries map[string]string) error {
	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return eris.Wrap(err, "uploadcache: encode")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "uploadcache: create temp in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "uploadcache: write temp")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "uploadcache: sync temp")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "uploadcache: close temp")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return eris.Wrapf(err, "uploadcache: replace %s", s.path)
	}
	return nil
}

// Close is a no-op.
func (s *JSONStore) Close() error { return nil }
