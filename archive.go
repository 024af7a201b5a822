// Package lazyzip reads ZIP archives from random-access sources without extracting them to
// disk or holding them in memory: callers iterate entries, stream their decompressed contents,
// and close.
//
// Beyond spec-compliant PKZIP and ZIP64 layouts, the package recovers archives written by the
// Mac OS Archive Utility, which silently truncates sizes, offsets, and entry counts modulo
// 2^32 / 2^16 rather than emitting ZIP64 records. Recovery is evidence-driven: the footer's
// claims are reconciled with the layout they would imply, and ambiguous archives are tracked
// as "maybe Mac" until a later entry or stream settles the question. A spec-compliant archive
// is never misread as a Mac one.
package lazyzip

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/nguyengg/lazyzip/rangeio"
)

// Archive is an open ZIP archive.
//
// ReadEntry and the iterators derived from it are strictly serial; read streams returned by
// OpenReadStream may be consumed concurrently with each other and with entry iteration.
type Archive struct {
	r    rangeio.Reader
	size int64
	opts Options

	// mu guards all mutable state below as well as the entry fields it is documented to.
	mu sync.Mutex

	footerOffset int64
	isZip64      bool
	rawComment   []byte
	comment      string

	cdOffset   int64
	cdSize     int64
	entryCount int64

	cdOffsetCertain   bool
	cdSizeCertain     bool
	entryCountCertain bool

	compressedSizesCertain   bool
	uncompressedSizesCertain bool

	mac       macState
	uncertain *uncertainSet // non-nil only while mac == macMaybe

	entryCursor int64
	fileCursor  int64 // next expected local file header offset; -1 once known not Mac
	entriesRead int64
	exhausted   bool
	firstEntry  *Entry // cached by the anchor probe so ReadEntry need not re-read it
	firstLen    int64

	reading atomic.Bool
	closed  bool
}

// Open opens the named file as a ZIP archive.
func Open(name string, optFns ...func(*Options)) (*Archive, error) {
	f, err := rangeio.OpenFile(name)
	if err != nil {
		return nil, err
	}

	size, err := f.Size()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	a, err := FromReader(f, size, optFns...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return a, nil
}

// FromFile opens an archive over a caller-provided open file.
//
// The file descriptor is borrowed, never owned: neither Close nor stream cancellation closes
// it. The caller must keep it open for the lifetime of the archive and its streams.
func FromFile(f *os.File, optFns ...func(*Options)) (*Archive, error) {
	r := rangeio.Borrow(f)

	size, err := r.Size()
	if err != nil {
		return nil, err
	}

	return FromReader(r, size, optFns...)
}

// FromBuffer opens an archive over an in-memory byte slice, without copying it.
func FromBuffer(b []byte, optFns ...func(*Options)) (*Archive, error) {
	return FromReader(rangeio.NewBuffer(b), int64(len(b)), optFns...)
}

// FromReader opens an archive over any rangeio.Reader of known total size.
//
// The archive takes ownership of r: Archive.Close closes it.
func FromReader(r rangeio.Reader, size int64, optFns ...func(*Options)) (*Archive, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &Archive{r: r, size: size, opts: opts}

	if err := a.findFooter(); err != nil {
		return nil, err
	}
	if err := a.resolveAnchor(); err != nil {
		return nil, err
	}

	if a.opts.DecodeStrings {
		// the footer comment has no language-encoding flag; CP437 is the safe decode.
		a.comment = decodeString(a.rawComment, false)
	}

	return a, nil
}

// Close closes the archive and its reader.
//
// Close is idempotent. It fails with rangeio.ErrReadInProgress while entry streams are still
// being read; close or drain them first.
func (a *Archive) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	if err := a.r.Close(); err != nil {
		return err
	}

	a.mu.Lock()
	a.closed = true
	if a.uncertain != nil {
		a.uncertain.drain(false)
		a.uncertain = nil
	}
	a.mu.Unlock()
	return nil
}

// IsOpen reports whether the archive's reader still accepts reads.
func (a *Archive) IsOpen() bool {
	return a.r.IsOpen()
}

// IsMacArchive reports whether the archive has been confirmed as written by the Mac OS
// Archive Utility.
func (a *Archive) IsMacArchive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mac == macDefinite
}

// IsMaybeMacArchive reports whether the archive's layout is still consistent with both a
// spec-compliant and a Mac Archive Utility origin. Mutually exclusive with IsMacArchive.
func (a *Archive) IsMaybeMacArchive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mac == macMaybe
}

// IsZip64 reports whether the footer carried ZIP64 records.
func (a *Archive) IsZip64() bool {
	return a.isZip64
}

// Comment returns the archive comment decoded per the DecodeStrings option.
func (a *Archive) Comment() string {
	return a.comment
}

// RawComment returns the undecoded archive comment bytes.
func (a *Archive) RawComment() []byte {
	return a.rawComment
}

// EntryCount returns the number of entries the archive is currently believed to hold, along
// with whether that number is settled. For a Mac archive with a truncated count the number may
// be revised upward as entries are read.
func (a *Archive) EntryCount() (n int64, certain bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entryCount, a.entryCountCertain
}

// NumEntriesRead returns how many entries ReadEntry has produced so far.
func (a *Archive) NumEntriesRead() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entriesRead
}

// cdEnd returns the exclusive end of the region entry headers may occupy. While the central
// directory size is unsettled the directory may extend all the way to the footer.
func (a *Archive) cdEnd() int64 {
	if a.cdSizeCertain {
		return a.cdOffset + a.cdSize
	}
	return a.footerOffset
}
