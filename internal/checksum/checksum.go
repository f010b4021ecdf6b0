// Package checksum computes and validates sha256 digests of payload files.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Size is the length of a hex encoded sha256 digest.
const Size = sha256.Size * 2

// Reader drains r and returns its hex sha256 and byte count.
func Reader(r io.Reader) (string, int64, error) {
	return Copy(io.Discard, r)
}

// Copy copies src to dst while hashing what passes through.
func Copy(dst io.Writer, src io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(dst, h), src)
	if err != nil {
		return "", n, fmt.Errorf("hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Bytes returns the hex sha256 of data.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Normalize lower-cases and trims a digest, reporting whether it is a well
// formed sha256.
func Normalize(v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	if len(v) != Size {
		return v, false
	}
	if _, err := hex.DecodeString(v); err != nil {
		return v, false
	}
	return v, true
}
