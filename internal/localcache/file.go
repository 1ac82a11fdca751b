package localcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// File stores each key as <dir>/<escaped key>.json. Writes go through a temp
// file and a rename so a crash never leaves a half-written value.
type File struct {
	Dir string
}

func NewFile(dir string) *File {
	return &File{Dir: dir}
}

func (f *File) path(key string) string {
	return filepath.Join(f.Dir, url.PathEscape(key)+".json")
}

func (f *File) ensure() error {
	if strings.TrimSpace(f.Dir) == "" {
		return fmt.Errorf("cache dir is not configured")
	}
	return os.MkdirAll(f.Dir, 0o755)
}

func (f *File) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	if strings.TrimSpace(f.Dir) == "" {
		return nil, false, nil
	}
	b, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache %s: %w", key, err)
	}
	value, err := validate(key, b)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (f *File) Put(_ context.Context, key string, value json.RawMessage) error {
	if err := f.ensure(); err != nil {
		return err
	}
	path := f.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("write cache %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit cache %s: %w", key, err)
	}
	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	if strings.TrimSpace(f.Dir) == "" {
		return nil
	}
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete cache %s: %w", key, err)
	}
	return nil
}
