// Package atomicfile replaces files through a temp file and a rename, so a
// crash mid-write never leaves a torn override table or asset file behind.
package atomicfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFile writes data to path atomically.
//
// If perm is 0 the existing file's mode is kept, falling back to 0644.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	return Write(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// Write streams the new content of path through fn and swaps it in only
// when fn and the flush both succeed. The original file is untouched on
// any error.
func Write(path string, perm os.FileMode, fn func(w io.Writer) error) error {
	if perm == 0 {
		if st, err := os.Stat(path); err == nil {
			perm = st.Mode().Perm()
		} else {
			perm = 0o644
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	_ = tmp.Chmod(perm)

	bw := bufio.NewWriter(tmp)
	if err := fn(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// Windows refuses to rename over an existing file.
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(path)
		if err2 := os.Rename(tmpPath, path); err2 != nil {
			return fmt.Errorf("rename temp file: %w", err)
		}
	}

	committed = true
	return nil
}

// Unchanged reports whether path already holds exactly data. Callers use it
// to skip rewriting files whose content would not change.
func Unchanged(path string, data []byte) bool {
	cur, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return bytes.Equal(cur, data)
}
