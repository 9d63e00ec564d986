package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/canonical/bib-ranking/internal/ranking"
)

// WriteFile replaces path with the rows of entries. "-" writes to stdout.
// The rows are written to a temporary file next to path and renamed into
// place, so readers never see a partial file and an existing symlink at
// path is replaced rather than followed.
func WriteFile(path string, entries []ranking.Entry) error {
	if path == "" || path == "-" {
		return WriteRows(os.Stdout, entries)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".rows-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := WriteRows(tmp, entries); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename rows file: %w", err)
	}
	return nil
}
