// Package hashing implements the Content Hasher: deterministic,
// stateless SHA-256 hashing of artifact bytes, used for prompt-version
// dedup, provenance records, and stale-cascade comparisons.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"podship/internal/services"
)

const streamBufferSize = 64 * 1024

// HashFile returns the lowercase hex SHA-256 digest of path, streamed in
// chunks of at least 64 KiB. Fails with services.ErrIO when the file is
// missing or unreadable.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrIO, "", "hash_file", fmt.Sprintf("open %s", path), err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, streamBufferSize)
	if _, err := io.CopyBuffer(h, struct{ io.Reader }{f}, buf); err != nil {
		return "", services.Wrap(services.ErrIO, "", "hash_file", fmt.Sprintf("read %s", path), err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the lowercase hex SHA-256 digest of data. Newlines and
// encodings are never normalized; the hash covers the literal bytes given.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
