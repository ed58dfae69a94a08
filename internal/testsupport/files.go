package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// ebmlMagic opens every Matroska file. Fixtures carry it so size and
// content checks treat them like real media.
var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// WriteMediaFixture fills path with size bytes shaped like a Matroska file:
// the EBML magic followed by patterned payload. A size smaller than the
// magic writes the magic alone.
func WriteMediaFixture(t testing.TB, path string, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	if _, err := f.Write(ebmlMagic); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	remaining := size - int64(len(ebmlMagic))

	const chunkSize = 32 * 1024
	chunk := make([]byte, chunkSize)
	for i := range chunk {
		chunk[i] = byte(i)
	}
	for remaining > 0 {
		n := int64(chunkSize)
		if remaining < n {
			n = remaining
		}
		if _, err := f.Write(chunk[:n]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= n
	}
}
