package rangeio

import (
	"bytes"
	"io"
)

// Buffer is a Reader over an in-memory byte slice.
type Buffer struct {
	tracker
	b []byte
}

var _ Reader = &Buffer{}
var _ io.ReaderAt = &Buffer{}

// NewBuffer wraps b without copying it. The caller must not mutate b while the reader is in
// use.
func NewBuffer(b []byte) *Buffer {
	return &Buffer{b: b}
}

// Size returns the length of the wrapped slice.
func (r *Buffer) Size() int64 {
	return int64(len(r.b))
}

func (r *Buffer) OpenRange(off, n int64) (io.ReadCloser, error) {
	if n == 0 {
		return emptyStream{}, nil
	}
	if err := r.begin(); err != nil {
		return nil, err
	}

	return newTrackedStream(&r.tracker, io.NopCloser(io.NewSectionReader(bytes.NewReader(r.b), off, n)), n), nil
}

func (r *Buffer) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(r.b).ReadAt(p, off)
}

func (r *Buffer) Open() error {
	r.reopen()
	return nil
}

func (r *Buffer) Close() error {
	return r.close(nil)
}
