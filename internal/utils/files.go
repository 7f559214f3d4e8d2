package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyFile copies src to dst through a temporary file in the destination
// directory, so an interrupted copy never leaves a partial dst behind.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".staging-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if fi, err := in.Stat(); err == nil {
		os.Chmod(tmp.Name(), fi.Mode().Perm())
		os.Chtimes(tmp.Name(), fi.ModTime(), fi.ModTime())
	}

	return os.Rename(tmp.Name(), dst)
}

// StageFile copies src to dst unless dst already exists. It reports whether
// a copy happened.
func StageFile(src, dst string, overwrite bool) (bool, error) {
	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			return false, nil
		}
	}
	if err := CopyFile(src, dst); err != nil {
		return false, err
	}
	return true, nil
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
