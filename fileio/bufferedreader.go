package fileio

import (
	"errors"
	"fmt"
	"io"
)

// ChunkReader reads a resource in fixed size chunks
type ChunkReader struct {
	reader io.Reader
	buf    []byte
}

// NewChunkReader returns a reader producing chunks of at most chunkSize bytes
func NewChunkReader(r io.Reader, chunkSize int) *ChunkReader {
	return &ChunkReader{reader: r, buf: make([]byte, chunkSize)}
}

// Next returns the next chunk, io.EOF once the source is exhausted, or an
// error wrapping ErrResourceRead. The returned slice is reused by the next call.
func (c *ChunkReader) Next() ([]byte, error) {
	n, err := io.ReadFull(c.reader, c.buf)
	switch {
	case err == nil:
		return c.buf[:n], nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		// Short final chunk.
		return c.buf[:n], nil
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("%w: %v", ErrResourceRead, err)
	}
}
