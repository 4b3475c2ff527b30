package library

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// ComputeHash generates the content hash that identifies a book. The whole
// file is hashed so editions that share a prefix stay distinct.
func ComputeHash(filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16]), nil // First 16 bytes = 32 hex chars
}
