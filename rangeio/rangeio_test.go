package rangeio

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferOpenRange(t *testing.T) {
	r := NewBuffer([]byte("0123456789"))

	s, err := r.OpenRange(2, 5)
	require.NoError(t, err)
	b, err := io.ReadAll(s)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, "23456", string(b))

	// zero-length ranges return an immediately drained stream without I/O.
	s, err = r.OpenRange(4, 0)
	require.NoError(t, err)
	b, err = io.ReadAll(s)
	require.NoError(t, err)
	assert.Empty(t, b)
	require.NoError(t, s.Close())

	require.NoError(t, r.Close())
}

func TestBufferShortRange(t *testing.T) {
	r := NewBuffer([]byte("0123"))

	s, err := r.OpenRange(2, 10)
	require.NoError(t, err)
	_, err = io.ReadAll(s)
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
	require.NoError(t, s.Close())
	require.NoError(t, r.Close())
}

func TestReadFull(t *testing.T) {
	r := NewBuffer([]byte("0123456789"))

	p := make([]byte, 4)
	require.NoError(t, ReadFull(r, p, 3))
	assert.Equal(t, "3456", string(p))

	require.NoError(t, ReadFull(r, nil, 99))

	err := ReadFull(r, p, 8)
	assert.ErrorIs(t, err, ErrUnexpectedEOF)

	require.NoError(t, r.Close())
	assert.ErrorIs(t, ReadFull(r, p, 0), ErrClosed)
}

// streamOnlyReader hides the ReadAt fast path so ReadFull exercises its stream-draining
// fallback.
type streamOnlyReader struct{ b *Buffer }

func (s streamOnlyReader) OpenRange(off, n int64) (io.ReadCloser, error) { return s.b.OpenRange(off, n) }
func (s streamOnlyReader) Open() error                                   { return s.b.Open() }
func (s streamOnlyReader) Close() error                                  { return s.b.Close() }
func (s streamOnlyReader) IsOpen() bool                                  { return s.b.IsOpen() }

func TestReadFullDerivedFromStream(t *testing.T) {
	r := streamOnlyReader{b: NewBuffer([]byte("0123456789"))}

	p := make([]byte, 4)
	require.NoError(t, ReadFull(r, p, 3))
	assert.Equal(t, "3456", string(p))

	assert.ErrorIs(t, ReadFull(r, p, 8), ErrUnexpectedEOF)
}

func TestCloseWhileStreamOutstanding(t *testing.T) {
	r := NewBuffer([]byte("0123456789"))

	s, err := r.OpenRange(0, 10)
	require.NoError(t, err)

	assert.ErrorIs(t, r.Close(), ErrReadInProgress)
	assert.True(t, r.IsOpen())

	// fully draining the stream releases its slot even without Close.
	_, err = io.ReadAll(s)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.False(t, r.IsOpen())

	// idempotent.
	require.NoError(t, r.Close())

	_, err = r.OpenRange(0, 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFileReader(t *testing.T) {
	name := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(name, []byte("hello file reader"), 0644))

	r, err := OpenFile(name)
	require.NoError(t, err)

	size, err := r.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 17, size)

	p := make([]byte, 4)
	require.NoError(t, ReadFull(r, p, 6))
	assert.Equal(t, "file", string(p))

	require.NoError(t, r.Close())

	// Open reopens by name.
	require.NoError(t, r.Open())
	require.NoError(t, ReadFull(r, p, 0))
	assert.Equal(t, "hell", string(p))
	require.NoError(t, r.Close())
}

func TestBorrowedNeverClosesDescriptor(t *testing.T) {
	name := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(name, []byte("borrowed bytes"), 0644))

	f, err := os.Open(name)
	require.NoError(t, err)
	defer f.Close()

	r := Borrow(f)

	s, err := r.OpenRange(0, 8)
	require.NoError(t, err)
	require.NoError(t, s.Close()) // cancelling a stream must not close the descriptor

	require.NoError(t, r.Close())

	// the descriptor is still usable after the reader closed.
	p := make([]byte, 8)
	_, err = f.ReadAt(p, 0)
	require.NoError(t, err)
	assert.Equal(t, "borrowed", string(p))
}

func TestTrackedStreamReleasesOnError(t *testing.T) {
	r := NewBuffer([]byte("0123"))

	s, err := r.OpenRange(0, 10) // short source: the stream errors mid-way
	require.NoError(t, err)

	_, err = io.ReadAll(s)
	require.Error(t, err)

	// the failed stream released its slot, so close succeeds.
	require.NoError(t, r.Close())
}
