package lazyzip

import (
	"io"
	"sync"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// A Decompressor wraps a raw compressed stream with one that yields the original bytes.
//
// Decompressors must not read past the data they are given and must preserve backpressure:
// bytes are pulled from r only as the returned stream is read.
type Decompressor func(r io.Reader) io.ReadCloser

var decompressors sync.Map // map[uint16]Decompressor

func init() {
	RegisterDecompressor(MethodStore, func(r io.Reader) io.ReadCloser { return io.NopCloser(r) })
	RegisterDecompressor(MethodDeflate, func(r io.Reader) io.ReadCloser { return flate.NewReader(r) })
	RegisterDecompressor(MethodBzip2, func(r io.Reader) io.ReadCloser {
		zr, err := bzip2.NewReader(r, nil)
		if err != nil {
			return errStream{err}
		}
		return zr
	})
	RegisterDecompressor(MethodZstd, func(r io.Reader) io.ReadCloser {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return errStream{err}
		}
		return zr.IOReadCloser()
	})
	RegisterDecompressor(MethodXz, func(r io.Reader) io.ReadCloser {
		zr, err := xz.NewReader(r)
		if err != nil {
			return errStream{err}
		}
		return io.NopCloser(zr)
	})
}

// RegisterDecompressor installs (or replaces) the Decompressor for a compression method,
// for every archive opened by this package.
func RegisterDecompressor(method uint16, d Decompressor) {
	decompressors.Store(method, d)
}

func decompressor(method uint16) (Decompressor, bool) {
	d, ok := decompressors.Load(method)
	if !ok {
		return nil, false
	}
	return d.(Decompressor), true
}

// errStream defers a decompressor construction error to the first read.
type errStream struct {
	err error
}

func (s errStream) Read([]byte) (int, error) { return 0, s.err }
func (s errStream) Close() error             { return nil }
