package fileio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go_mini_ftp/constants"
)

// RootSource serves files beneath a single directory. Client paths are
// resolved as if the directory were "/", so ".." can never climb above it,
// and os.Root refuses symlinks that point outside.
type RootSource struct {
	root *os.Root

	// Archives enables serving <path>.lz4 decompressed when <path> is absent.
	Archives bool
}

// NewRootSource opens dir as the root of all served paths
func NewRootSource(dir string) (*RootSource, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("fileio: open root %s: %w", dir, err)
	}
	return &RootSource{root: root}, nil
}

// Name returns the root directory
func (s *RootSource) Name() string {
	return s.root.Name()
}

// Close releases the root directory handle
func (s *RootSource) Close() error {
	return s.root.Close()
}

// Open opens name for reading
func (s *RootSource) Open(name string) (Resource, error) {
	rel := Resolve(name)
	if rel == "." {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	res, err := s.openFile(rel)
	if err == nil || !s.Archives || !errors.Is(err, fs.ErrNotExist) {
		return res, err
	}

	res, aerr := s.openArchive(rel + constants.ARCHIVE_SUFFIX)
	if aerr != nil {
		if errors.Is(aerr, fs.ErrNotExist) {
			return nil, err
		}
		return nil, aerr
	}
	return res, nil
}

func (s *RootSource) openFile(rel string) (Resource, error) {
	file, err := s.root.Open(rel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if !info.Mode().IsRegular() {
		file.Close()
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, rel)
	}
	return &fileResource{File: file, size: info.Size()}, nil
}

// Resolve maps a client path onto a path relative to the root.
// "/a/../b", "../b" and "b" all resolve to "b"; "" and "/" resolve to ".".
func Resolve(name string) string {
	clean := path.Clean("/" + filepath.ToSlash(name))
	rel := strings.TrimPrefix(clean, "/")
	if rel == "" {
		return "."
	}
	return filepath.FromSlash(rel)
}

type fileResource struct {
	*os.File
	size int64
}

func (f *fileResource) Size() int64 {
	return f.size
}
