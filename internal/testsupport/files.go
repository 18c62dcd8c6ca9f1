package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path, and any missing parents, holding size filler
// bytes. Sizes below one are rounded up to one.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	writeAll(t, path, bytes.Repeat([]byte{'B'}, int(max(size, 1))), 0o644)
}

// WriteStubBinary creates an executable /bin/sh script dir/name running
// script, and returns its path.
func WriteStubBinary(t testing.TB, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	writeAll(t, path, []byte("#!/bin/sh\n"+script+"\n"), 0o755)
	return path
}

func writeAll(t testing.TB, path string, data []byte, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
