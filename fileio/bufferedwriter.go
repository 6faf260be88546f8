package fileio

import (
	"bufio"
	"errors"
	"hash"
	"io"
	"os"
)

// BufferedWriter does buffered writes of a download to disk, optionally
// lz4-compressed, while hashing the uncompressed bytes.
type BufferedWriter struct {
	file    *os.File
	writer  *bufio.Writer
	sink    io.Writer
	lz      io.WriteCloser
	hash    hash.Hash
	written int64
}

// NewBufferedWriter creates filename for writing or returns error upon failing to do so
func NewBufferedWriter(filename string, bufferSize int, compress, sha bool) (*BufferedWriter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	b := &BufferedWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, bufferSize),
		hash:   NewHash(sha),
	}
	b.sink = b.writer
	if compress {
		b.lz = CompressingWriter(b.writer)
		b.sink = b.lz
	}
	return b, nil
}

func (b *BufferedWriter) Write(p []byte) (int, error) {
	n, err := b.sink.Write(p)
	b.hash.Write(p[:n])
	b.written += int64(n)
	return n, err
}

// Written returns the number of uncompressed bytes accepted so far
func (b *BufferedWriter) Written() int64 {
	return b.written
}

// Sum returns the checksum of the uncompressed bytes written so far
func (b *BufferedWriter) Sum() []byte {
	return b.hash.Sum(nil)
}

// Close flushes any remaining bytes and closes the file
func (b *BufferedWriter) Close() error {
	var errs []error
	if b.lz != nil {
		errs = append(errs, b.lz.Close())
	}
	errs = append(errs, b.writer.Flush(), b.file.Close())
	return errors.Join(errs...)
}
