package lazyzip

import (
	"io"

	"github.com/nguyengg/lazyzip/rangeio"
)

// virtualReader is a rangeio.Reader over a sparse, synthetic byte layout: a few materialized
// segments (headers, descriptors, directories) on top of a deterministic filler for the file
// data in between. It makes multi-gigabyte layouts testable without materializing them.
type virtualReader struct {
	size     int64
	segments []segment
	fill     func(off int64) byte
	closed   bool
}

type segment struct {
	off  int64
	data []byte
}

var _ rangeio.Reader = &virtualReader{}
var _ io.ReaderAt = &virtualReader{}

func (r *virtualReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, io.EOF
	}

	n := len(p)
	var short bool
	if off+int64(n) > r.size {
		n, short = int(r.size-off), true
	}

	for i := range n {
		p[i] = r.byteAt(off + int64(i))
	}
	if short {
		return n, io.EOF
	}
	return n, nil
}

func (r *virtualReader) byteAt(off int64) byte {
	for _, s := range r.segments {
		if off >= s.off && off < s.off+int64(len(s.data)) {
			return s.data[off-s.off]
		}
	}
	if r.fill != nil {
		return r.fill(off)
	}
	return 0
}

func (r *virtualReader) OpenRange(off, n int64) (io.ReadCloser, error) {
	if n == 0 {
		return io.NopCloser(io.MultiReader()), nil
	}
	return io.NopCloser(io.NewSectionReader(r, off, n)), nil
}

func (r *virtualReader) Open() error {
	r.closed = false
	return nil
}

func (r *virtualReader) Close() error {
	r.closed = true
	return nil
}

func (r *virtualReader) IsOpen() bool {
	return !r.closed
}
