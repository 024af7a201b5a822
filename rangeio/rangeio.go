// Package rangeio provides the random-access byte sources that lazyzip archives read from.
//
// A source only has to know how to serve a bounded byte range as a stream (OpenRange); positional
// reads are derived with ReadFull. Implementations are provided for local files (File), borrowed
// file descriptors (Borrowed), in-memory buffers (Buffer), and S3 objects (S3).
package rangeio

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
)

var (
	// ErrClosed is returned by OpenRange and ReadFull after Close returns.
	ErrClosed = errors.New("reader already closed")

	// ErrReadInProgress is returned by Close if range streams are still being read.
	//
	// Close yields once to let in-flight streams finish; streams that remain open after that
	// must be closed by their owners before the reader can close.
	ErrReadInProgress = errors.New("cannot close while reads are in progress")

	// ErrUnexpectedEOF is returned when a range stream or positional read cannot deliver the
	// full requested byte count.
	ErrUnexpectedEOF = errors.New("unexpected end of file")
)

// Reader is a random-access byte source.
//
// OpenRange must return a stream delivering exactly n bytes starting at off, honouring
// backpressure (callers pull; implementations must not buffer the whole range eagerly).
// A zero-length request returns an immediately drained stream without performing I/O.
//
// Implementations must serve arbitrary 64-bit offsets. Closing a range stream must never close
// the underlying descriptor or buffer; only Close does that, and only for sources the reader
// owns.
type Reader interface {
	// OpenRange returns a stream of exactly n bytes starting at offset off.
	//
	// The stream fails with an error wrapping ErrUnexpectedEOF if the source cannot deliver
	// n bytes. Callers must Close the returned stream exactly once.
	OpenRange(off, n int64) (io.ReadCloser, error)

	// Open is the idempotent counterpart to Close.
	Open() error

	// Close releases the underlying source once no range streams remain open.
	//
	// Close is idempotent. If streams are still being read after a brief yield, Close fails
	// with ErrReadInProgress and the reader stays open.
	Close() error

	// IsOpen reports whether the reader accepts new range streams.
	IsOpen() bool
}

// ReadFull fills p with the bytes at offset off.
//
// If r implements io.ReaderAt that fast path is used; otherwise a range stream is opened and
// drained. Either way the read is all-or-nothing: a short source fails with an error wrapping
// ErrUnexpectedEOF. A zero-length p returns immediately without I/O.
func ReadFull(r Reader, p []byte, off int64) error {
	if len(p) == 0 {
		return nil
	}

	if ra, ok := r.(io.ReaderAt); ok {
		if !r.IsOpen() {
			return ErrClosed
		}

		switch n, err := ra.ReadAt(p, off); {
		case err == nil:
			return nil
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return fmt.Errorf("%w: read %d of %d bytes at offset %d", ErrUnexpectedEOF, n, len(p), off)
		default:
			return err
		}
	}

	s, err := r.OpenRange(off, int64(len(p)))
	if err != nil {
		return err
	}

	_, err = io.ReadFull(s, p)
	_ = s.Close()

	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: short read at offset %d", ErrUnexpectedEOF, off)
	default:
		return err
	}
}

// tracker maintains the open/closed state of a reader along with the number of outstanding
// range streams, so that Close can refuse to pull the source out from under an active stream.
type tracker struct {
	mu      sync.Mutex
	closed  bool
	streams int
}

func (t *tracker) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// begin registers a new stream. Fails with ErrClosed after Close.
func (t *tracker) begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	t.streams++
	return nil
}

// end releases a stream slot. Idempotence is handled by trackedStream, not here.
func (t *tracker) end() {
	t.mu.Lock()
	t.streams--
	t.mu.Unlock()
}

// reopen undoes Close for sources that can simply flip the flag back.
func (t *tracker) reopen() {
	t.mu.Lock()
	t.closed = false
	t.mu.Unlock()
}

// close runs f with the reader marked closed, after verifying no streams remain.
//
// The single runtime.Gosched gives streams that are mid-teardown a chance to release their
// slot; streams still actively reading after that cause ErrReadInProgress.
func (t *tracker) close(f func() error) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}

	if t.streams > 0 {
		t.mu.Unlock()
		runtime.Gosched()
		t.mu.Lock()
	}

	if t.streams > 0 {
		t.mu.Unlock()
		return ErrReadInProgress
	}

	t.closed = true
	t.mu.Unlock()

	if f == nil {
		return nil
	}
	return f()
}

// trackedStream delivers exactly size bytes from rc, releasing its tracker slot exactly once on
// Close or on the first terminal read error.
type trackedStream struct {
	t         *tracker
	rc        io.ReadCloser
	remaining int64
	done      bool
}

// newTrackedStream wraps rc; the tracker slot must already be held by the caller.
func newTrackedStream(t *tracker, rc io.ReadCloser, size int64) *trackedStream {
	return &trackedStream{t: t, rc: rc, remaining: size}
}

func (s *trackedStream) Read(p []byte) (int, error) {
	if s.remaining <= 0 {
		s.release()
		return 0, io.EOF
	}

	if int64(len(p)) > s.remaining {
		p = p[:s.remaining]
	}

	n, err := s.rc.Read(p)
	s.remaining -= int64(n)

	switch {
	case err == nil:
		if s.remaining == 0 {
			s.release()
		}
		return n, nil
	case errors.Is(err, io.EOF):
		if s.remaining > 0 {
			err = fmt.Errorf("%w: %d bytes missing from range stream", ErrUnexpectedEOF, s.remaining)
		} else {
			err = io.EOF
		}
		s.release()
		return n, err
	default:
		s.release()
		return n, err
	}
}

func (s *trackedStream) Close() error {
	err := s.rc.Close()
	s.release()
	return err
}

func (s *trackedStream) release() {
	if !s.done {
		s.done = true
		s.t.end()
	}
}

// emptyStream is what a zero-length OpenRange returns: immediately drained, no I/O.
type emptyStream struct{}

func (emptyStream) Read([]byte) (int, error) { return 0, io.EOF }
func (emptyStream) Close() error             { return nil }
