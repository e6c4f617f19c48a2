package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DirTarget stores snapshots as files in a local directory.
type DirTarget struct {
	dir string
}

// NewDirTarget creates a target rooted at dir, creating it if missing.
func NewDirTarget(dir string) (*DirTarget, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	return &DirTarget{dir: dir}, nil
}

// Store writes the stream to a temporary file and renames it into place, so
// a partially written snapshot never appears under its final name.
func (t *DirTarget) Store(ctx context.Context, name string, r io.Reader) error {
	tmp, err := os.CreateTemp(t.dir, name+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(t.dir, name))
}
