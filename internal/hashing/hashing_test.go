package hashing_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"podship/internal/hashing"
	"podship/internal/services"
)

func TestHashBytesDeterministic(t *testing.T) {
	a := hashing.HashBytes([]byte("hello world"))
	b := hashing.HashBytes([]byte("hello world"))
	if a != b {
		t.Fatalf("expected identical digests, got %q and %q", a, b)
	}
	if a == hashing.HashBytes([]byte("hello world\n")) {
		t.Fatalf("expected trailing newline to change the digest")
	}
}

func TestHashFileMatchesHashBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.txt")
	content := []byte("the quick brown fox jumps over the lazy dog")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got, err := hashing.HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	want := hashing.HashBytes(content)
	if got != want {
		t.Fatalf("expected HashFile to match HashBytes, got %q want %q", got, want)
	}
}

func TestHashFileMissingReturnsIOError(t *testing.T) {
	_, err := hashing.HashFile(filepath.Join(t.TempDir(), "missing.bin"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestHashFileStreamsLargerThanBufferSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "large.bin")
	data := make([]byte, 200*1024)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got, err := hashing.HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if want := hashing.HashBytes(data); got != want {
		t.Fatalf("expected streamed hash to match in-memory hash, got %q want %q", got, want)
	}
}
