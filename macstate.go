package lazyzip

import (
	"runtime"
	"sync"
	"weak"
)

// macState is the archive's Mac Archive Utility verdict. Transitions are monotone: macMaybe
// may resolve either way exactly once; macNot and macDefinite are terminal.
type macState uint8

const (
	// macNot: the archive is spec-compliant (or Mac support is off); every footer claim is
	// taken at face value.
	macNot macState = iota

	// macMaybe: the layout is consistent with both a spec-compliant archive and a Mac
	// archive small enough that no truncation occurred. Evidence from later entries or
	// streams resolves it.
	macMaybe

	// macDefinite: the archive was written by the Mac OS Archive Utility and its footer
	// claims have been reconciled with the physical layout.
	macDefinite
)

// uncertainSet tracks live entries whose uncompressed size is not yet confirmed, without
// keeping them alive: a dropped entry's slot is reclaimed by its cleanup function. Drained
// exactly once when the archive's Mac status resolves.
type uncertainSet struct {
	mu    sync.Mutex
	next  uint64
	slots map[uint64]weak.Pointer[Entry]
}

func newUncertainSet() *uncertainSet {
	return &uncertainSet{slots: make(map[uint64]weak.Pointer[Entry])}
}

// add registers e and remembers the slot key on the entry so the stream pipeline can release
// it early once the size is confirmed.
func (s *uncertainSet) add(e *Entry) {
	s.mu.Lock()
	s.next++
	key := s.next
	s.slots[key] = weak.Make(e)
	s.mu.Unlock()

	e.uncertainKey = key
	runtime.AddCleanup(e, func(k uint64) { s.remove(k) }, key)
}

func (s *uncertainSet) remove(key uint64) {
	s.mu.Lock()
	delete(s.slots, key)
	s.mu.Unlock()
}

// drain empties the set. When markCertain is true (the archive turned out spec-compliant)
// every still-live entry's stored size is promoted to certain; the caller must hold the
// archive mutex that guards that field.
func (s *uncertainSet) drain(markCertain bool) {
	s.mu.Lock()
	slots := s.slots
	s.slots = make(map[uint64]weak.Pointer[Entry])
	s.mu.Unlock()

	for _, p := range slots {
		if e := p.Value(); e != nil {
			if markCertain {
				e.uncompressedSizeCertain = true
			}
			e.uncertainKey = 0
		}
	}
}

// setAsMacArchive promotes the archive to macDefinite. Callers must hold a.mu.
//
// The central directory is known to pack right up to the footer, so cdSize becomes exact and
// the entry count is raised to the minimum the directory could hold. Entries with unconfirmed
// uncompressed sizes stop being tracked centrally; their streams revise them on overflow.
func (a *Archive) setAsMacArchive() {
	if a.mac == macDefinite {
		return
	}

	a.mac = macDefinite
	a.cdSize = a.footerOffset - a.cdOffset
	a.cdSizeCertain = true

	if m := minMacEntryCount(a.cdSize); a.entryCount < m {
		a.entryCount += roundUpToMultipleOf64K(m - a.entryCount)
	}

	if a.uncertain != nil {
		a.uncertain.drain(false)
		a.uncertain = nil
	}
}

// setAsNotMacArchive demotes the archive from macMaybe: every footer claim was truthful after
// all. Callers must hold a.mu.
func (a *Archive) setAsNotMacArchive() {
	if a.mac == macNot {
		return
	}

	a.mac = macNot
	a.cdOffsetCertain = true
	a.cdSizeCertain = true
	a.entryCountCertain = true
	a.compressedSizesCertain = true
	a.uncompressedSizesCertain = true
	a.fileCursor = -1

	if a.uncertain != nil {
		a.uncertain.drain(true)
		a.uncertain = nil
	}
}

// entryLooksMac reports whether e matches the central directory signature of a Mac OS Archive
// Utility entry. first additionally requires the entry to sit at file offset 0.
//
// The Archive Utility stamps version-made-by 789, never writes entry comments or ZIP64
// fields, and emits exactly one of two shapes: deflated files with the streaming flag set, or
// stored records (folders, empty files, symlinks) whose sizes agree. Non-symlinks always carry
// the 8-byte extra field id 22613.
func (a *Archive) entryLooksMac(e *Entry, first bool) bool {
	if e.VersionMadeBy != macVersionMadeBy || len(e.RawComment) != 0 || a.isZip64 {
		return false
	}
	if first && e.FileHeaderOffset != 0 {
		return false
	}

	n := len(e.RawName)
	trailingSlash := n > 0 && e.RawName[n-1] == '/'

	switch {
	case e.VersionNeeded == 20 && e.Flags == flagDataDescriptor && e.Method == MethodDeflate && !trailingSlash:
		// a normal file.
		return e.hasMacExtraField()

	case e.VersionNeeded == 10 && e.Flags == 0 && e.Method == MethodStore && e.UncompressedSize == e.CompressedSize:
		// a folder, empty file, or symlink.
		if e.hasMacExtraField() {
			return trailingSlash || e.CompressedSize == 0
		}
		// symlinks carry no extra field and a non-empty target; a symlink name never
		// ends with a slash.
		return !trailingSlash && len(e.Extras) == 0
	}

	return false
}
