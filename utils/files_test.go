package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestArtifactPath(t *testing.T) {
	base := t.TempDir()

	t.Run("plain_name", func(t *testing.T) {
		got, err := ArtifactPath(base, "a.png")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		abs, _ := filepath.Abs(base)
		if got != filepath.Join(abs, "a.png") {
			t.Fatalf("got %s", got)
		}
	})

	for _, name := range []string{"", ".", "..", "../a.png", "sub/a.png", `sub\a.png`, "/etc/passwd"} {
		t.Run("reject_"+name, func(t *testing.T) {
			if _, err := ArtifactPath(base, name); err == nil {
				t.Fatalf("expected %q to be rejected", name)
			}
		})
	}
}

func TestRegularFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "img.png")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !RegularFileExists(file) {
		t.Fatal("expected file to exist")
	}
	if RegularFileExists(dir) {
		t.Fatal("directories must not count as artifacts")
	}
	if RegularFileExists(filepath.Join(dir, "missing.png")) {
		t.Fatal("missing file reported as present")
	}
}

func TestNewJobID(t *testing.T) {
	a, b := NewJobID(), NewJobID()
	if a == "" || a == b {
		t.Fatalf("expected distinct ids, got %q and %q", a, b)
	}
}
