package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileTarget persists an archive to Path via a temp file in the same
// directory followed by an atomic rename. A failed write never leaves a
// partial archive at Path.
type FileTarget struct {
	Path string
}

func (t *FileTarget) Save(write func(io.Writer) error) error {
	dir := filepath.Dir(t.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(t.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("archive: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("archive: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("archive: close temp: %w", err)
	}
	if err := os.Rename(tmpName, t.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("archive: rename: %w", err)
	}
	return nil
}
