package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashFileMatchesContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	if err := os.WriteFile(a, []byte("scene payload"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(b, []byte("scene payload"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	hashA, sizeA, err := HashFile(a)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	hashB, _, err := HashFile(b)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if hashA != hashB {
		t.Fatal("expected identical content to hash identically")
	}
	if sizeA != int64(len("scene payload")) {
		t.Fatalf("unexpected size %d", sizeA)
	}

	if err := os.WriteFile(b, []byte("different payload"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	hashB, _, err = HashFile(b)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if hashA == hashB {
		t.Fatal("expected differing content to hash differently")
	}
}

func TestReplaceFileOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "artifact.tmp")
	final := filepath.Join(dir, "artifact")
	if err := os.WriteFile(tmp, []byte("new"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(final, []byte("old"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := ReplaceFile(tmp, final); err != nil {
		t.Fatalf("ReplaceFile: %v", err)
	}
	data, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "new" {
		t.Fatalf("expected replacement content, got %q", data)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Fatal("expected temp file to be gone")
	}
}

func TestRemoveIfExistsToleratesMissing(t *testing.T) {
	if err := RemoveIfExists(filepath.Join(t.TempDir(), "absent")); err != nil {
		t.Fatalf("RemoveIfExists: %v", err)
	}
}
