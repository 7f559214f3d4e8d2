package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStageFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.wav")
	dst := filepath.Join(dir, "data", "ds", "audio", "en", "a.wav")

	if err := os.WriteFile(src, []byte("first"), 0644); err != nil {
		t.Fatal(err)
	}

	copied, err := StageFile(src, dst, false)
	if err != nil || !copied {
		t.Fatalf("first stage: copied=%v err=%v", copied, err)
	}
	if !FileExists(dst) {
		t.Fatal("staged file missing")
	}

	if err := os.WriteFile(src, []byte("second"), 0644); err != nil {
		t.Fatal(err)
	}
	copied, err = StageFile(src, dst, false)
	if err != nil || copied {
		t.Fatalf("existing target: copied=%v err=%v", copied, err)
	}
	if b, _ := os.ReadFile(dst); string(b) != "first" {
		t.Errorf("existing target rewritten: %q", b)
	}

	copied, err = StageFile(src, dst, true)
	if err != nil || !copied {
		t.Fatalf("overwrite: copied=%v err=%v", copied, err)
	}
	if b, _ := os.ReadFile(dst); string(b) != "second" {
		t.Errorf("overwrite content = %q", b)
	}

	entries, _ := os.ReadDir(filepath.Dir(dst))
	if len(entries) != 1 {
		t.Errorf("staging dir has %d entries, temp files left behind", len(entries))
	}
}

func TestCopyFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyFile(filepath.Join(dir, "nope.wav"), filepath.Join(dir, "out.wav")); err == nil {
		t.Error("expected error for missing source")
	}
	if FileExists(filepath.Join(dir, "out.wav")) {
		t.Error("destination created for missing source")
	}
}
