package manifest

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PathStyle is the per-dataset convention for src_audio.
type PathStyle int

const (
	// Rooted paths start with "/" and are relative to the data root.
	Rooted PathStyle = iota
	// Relative paths are bare, also relative to the data root.
	Relative
)

func ParsePathStyle(s string) (PathStyle, error) {
	switch s {
	case "rooted", "":
		return Rooted, nil
	case "relative":
		return Relative, nil
	}
	return Rooted, fmt.Errorf("unknown path style %q", s)
}

// AudioRef converts a staged file path into its src_audio form.
func AudioRef(dataRoot, path string, style PathStyle) (string, error) {
	rel, err := filepath.Rel(dataRoot, path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside data root %s", path, dataRoot)
	}
	rel = filepath.ToSlash(rel)
	if style == Rooted {
		return "/" + rel, nil
	}
	return rel, nil
}

// ResolveAudio maps a src_audio value of either style onto the filesystem.
func ResolveAudio(dataRoot, ref string) string {
	return filepath.Join(dataRoot, filepath.FromSlash(strings.TrimPrefix(ref, "/")))
}

// AudioPath returns the on-disk audio of r, if it has one.
func (r Record) AudioPath(dataRoot string) (string, bool) {
	if r.SrcAudio == nil || *r.SrcAudio == "" {
		return "", false
	}
	return ResolveAudio(dataRoot, *r.SrcAudio), true
}
