package fileio

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
)

// NewHash returns a SHA256 hash when sha is set and CRC32 otherwise
func NewHash(sha bool) hash.Hash {
	if sha {
		return sha256.New()
	}
	return crc32.NewIEEE()
}

// FileChecksum hashes the content of a local file
func FileChecksum(file string, sha bool) ([]byte, error) {
	handle, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	h := NewHash(sha)
	if _, err := io.CopyBuffer(h, handle, make([]byte, 64*1024)); err != nil {
		return nil, fmt.Errorf("checksum %s: %w", file, err)
	}
	return h.Sum(nil), nil
}
