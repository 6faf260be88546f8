package fileio

import (
	"errors"
	"io"
)

var (
	ErrNotFound     = errors.New("fileio: no such file or directory")
	ErrResourceRead = errors.New("fileio: resource read failed")
)

// Resource is an opened byte source with a known total length
type Resource interface {
	io.ReadCloser
	Size() int64
}

// Source opens resources by client supplied path
type Source interface {
	Open(path string) (Resource, error)
}
