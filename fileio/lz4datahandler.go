package fileio

import (
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"
)

// archiveResource streams the decompressed content of an lz4 frame file
type archiveResource struct {
	file   *os.File
	reader *lz4.Reader
	size   int64
}

func (a *archiveResource) Read(p []byte) (int, error) {
	return a.reader.Read(p)
}

func (a *archiveResource) Close() error {
	return a.file.Close()
}

func (a *archiveResource) Size() int64 {
	return a.size
}

// openArchive opens an lz4 file. The announced size must be the
// decompressed length, so the frame is decoded once to count it and the
// file is rewound for streaming.
func (s *RootSource) openArchive(rel string) (Resource, error) {
	file, err := s.root.Open(rel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	size, err := io.Copy(io.Discard, lz4.NewReader(file))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: corrupt archive %s: %v", ErrNotFound, rel, err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: rewind %s: %v", ErrResourceRead, rel, err)
	}

	return &archiveResource{file: file, reader: lz4.NewReader(file), size: size}, nil
}

// CompressingWriter returns a writer that lz4-compresses everything
// written to it into w. Close flushes the final block.
func CompressingWriter(w io.Writer) io.WriteCloser {
	return lz4.NewWriter(w)
}
