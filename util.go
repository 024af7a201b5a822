package lazyzip

import (
	"io"

	"github.com/valyala/bytebufferpool"
)

// ReadAll drains rc to a byte slice and closes it, even on error.
func ReadAll(rc io.ReadCloser) ([]byte, error) {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	_, err := bb.ReadFrom(rc)
	if cerr := rc.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	return append([]byte(nil), bb.B...), nil
}

// ReadAllString drains rc to a string and closes it, even on error.
func ReadAllString(rc io.ReadCloser) (string, error) {
	b, err := ReadAll(rc)
	return string(b), err
}
