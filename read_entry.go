package lazyzip

import (
	"encoding/binary"
	"fmt"
	"iter"

	"github.com/nguyengg/lazyzip/rangeio"
)

// ReadEntry returns the next entry from the central directory, or (nil, nil) once the
// directory is exhausted.
//
// ReadEntry is strictly serial: a call made before the previous one settles fails with
// ErrReentrantRead. On error the cursor does not advance, so a caller may choose to stop or,
// after some structural errors, keep using streams of entries already read.
func (a *Archive) ReadEntry() (*Entry, error) {
	if !a.reading.CompareAndSwap(false, true) {
		return nil, ErrReentrantRead
	}
	defer a.reading.Store(false)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.exhausted {
		return nil, nil
	}
	if a.entryCountCertain && a.entriesRead == a.entryCount {
		a.exhausted = true
		return nil, nil
	}
	if !a.entryCountCertain && a.entryCursor >= a.cdEnd() {
		// ran out of directory: the count is whatever we actually read.
		a.entryCount = a.entriesRead
		a.entryCountCertain = true
		a.exhausted = true
		return nil, nil
	}

	var (
		e      *Entry
		cdhLen int64
		err    error
	)
	if a.firstEntry != nil && a.entriesRead == 0 {
		e, cdhLen = a.firstEntry, a.firstLen
		a.firstEntry = nil
	} else {
		if e, cdhLen, err = a.parseEntryAt(a.entryCursor); err != nil {
			return nil, err
		}
	}

	if e.Flags&flagStrongEncryption != 0 {
		return nil, fmt.Errorf(`%w: entry "%s"`, ErrStrongEncryption, e.RawName)
	}

	// the count can lag reality only when it wrapped at 65536, which is Archive Utility
	// behaviour; a spec-compliant archive reaching this state is a bug in the resolver.
	if a.entriesRead+1 > a.entryCount {
		switch a.mac {
		case macMaybe:
			a.entryCount += 65536
			a.setAsMacArchive()
		case macDefinite:
			a.entryCount += 65536
		default:
			return nil, errLogicFailure
		}
	}

	switch a.mac {
	case macDefinite:
		if !a.entryLooksMac(e, a.entriesRead == 0) || !congruent32(e.FileHeaderOffset, a.fileCursor) {
			return nil, fmt.Errorf(`%w: entry "%s" does not match the Archive Utility layout`,
				ErrMisidentifiedMac, e.RawName)
		}
	case macMaybe:
		if err = a.escalateMaybeMac(e, cdhLen); err != nil {
			return nil, err
		}
	}

	if !a.compressedSizesCertain {
		if err = a.resolveCompressedSize(e); err != nil {
			return nil, err
		}
	}

	a.reconcileUncompressedSize(e)

	if a.opts.DecodeStrings {
		if err = a.decodeEntryStrings(e); err != nil {
			return nil, err
		}
	} else if a.opts.ValidateFilenames {
		if _, err = ValidateFilename(string(e.RawName), a.opts.StrictFilenames); err != nil {
			return nil, err
		}
	}

	if a.opts.ValidateEntrySizes && e.Method == MethodStore {
		want := e.UncompressedSize
		if e.IsEncrypted() {
			// traditional encryption prepends a 12-byte header to the file data.
			want += 12
		}
		if e.CompressedSize != want {
			return nil, fmt.Errorf(`%w: stored entry "%s" has %d compressed vs %d expected bytes`,
				ErrSizeMismatch, e.RawName, e.CompressedSize, want)
		}
	}

	a.entryCursor += cdhLen
	a.entriesRead++
	if a.mac != macNot {
		a.fileCursor += lfhFixedLen + int64(len(e.RawName)) + int64(len(e.Extras))*macLocalExtraLen +
			e.CompressedSize + e.dataDescriptorLen()
	}

	return e, nil
}

// ReadEntries reads up to n entries, or every remaining entry when n <= 0.
func (a *Archive) ReadEntries(n int) ([]*Entry, error) {
	var entries []*Entry
	for n <= 0 || len(entries) < n {
		e, err := a.ReadEntry()
		if err != nil {
			return entries, err
		}
		if e == nil {
			break
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Entries returns an iterator over the remaining entries. Any error stops the iteration.
func (a *Archive) Entries() iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		for {
			e, err := a.ReadEntry()
			if err != nil {
				yield(nil, err)
				return
			}
			if e == nil {
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// parseEntryAt reads and decodes one central directory file header at off, returning the
// entry and the total header length. The archive is not mutated.
func (a *Archive) parseEntryAt(off int64) (*Entry, int64, error) {
	if off < 0 || off+cdhFixedLen > a.footerOffset {
		return nil, 0, fmt.Errorf("%w: header at %d would cross the footer at %d",
			ErrBadCDH, off, a.footerOffset)
	}

	fixed := make([]byte, cdhFixedLen)
	if err := rangeio.ReadFull(a.r, fixed, off); err != nil {
		return nil, 0, fmt.Errorf("read central directory file header error: %w", err)
	}

	if binary.LittleEndian.Uint32(fixed) != sigCDH {
		return nil, 0, fmt.Errorf("%w: got 0x%08x at offset %d",
			ErrBadCDH, binary.LittleEndian.Uint32(fixed), off)
	}

	e := &Entry{
		archive:                 a,
		VersionMadeBy:           binary.LittleEndian.Uint16(fixed[4:]),
		VersionNeeded:           binary.LittleEndian.Uint16(fixed[6:]),
		Flags:                   binary.LittleEndian.Uint16(fixed[8:]),
		Method:                  binary.LittleEndian.Uint16(fixed[10:]),
		ModifiedTime:            binary.LittleEndian.Uint16(fixed[12:]),
		ModifiedDate:            binary.LittleEndian.Uint16(fixed[14:]),
		CRC32:                   binary.LittleEndian.Uint32(fixed[16:]),
		InternalAttrs:           binary.LittleEndian.Uint16(fixed[36:]),
		ExternalAttrs:           binary.LittleEndian.Uint32(fixed[38:]),
		rawCompressed32:         binary.LittleEndian.Uint32(fixed[20:]),
		rawUncompressed32:       binary.LittleEndian.Uint32(fixed[24:]),
		uncompressedSizeCertain: true,
		fileDataOffset:          -1,
	}
	e.CompressedSize = int64(e.rawCompressed32)
	e.UncompressedSize = int64(e.rawUncompressed32)
	e.FileHeaderOffset = int64(binary.LittleEndian.Uint32(fixed[42:]))

	n := int64(binary.LittleEndian.Uint16(fixed[28:]))
	m := int64(binary.LittleEndian.Uint16(fixed[30:]))
	k := int64(binary.LittleEndian.Uint16(fixed[32:]))
	total := cdhFixedLen + n + m + k
	if off+total > a.footerOffset {
		return nil, 0, fmt.Errorf("%w: header at %d would cross the footer at %d",
			ErrBadCDH, off, a.footerOffset)
	}

	variable := make([]byte, n+m+k)
	if err := rangeio.ReadFull(a.r, variable, off+cdhFixedLen); err != nil {
		return nil, 0, fmt.Errorf("read central directory file header error: %w", err)
	}

	e.RawName = variable[:n:n]
	e.RawComment = variable[n+m : n+m+k : n+m+k]
	e.Extras = parseExtraFields(variable[n : n+m])
	a.applyZip64Extra(e)

	return e, total, nil
}

// parseExtraFields walks the extra field area in order, keeping malformed trailing bytes out.
func parseExtraFields(b []byte) []ExtraField {
	var fields []ExtraField
	for len(b) >= 4 {
		id := binary.LittleEndian.Uint16(b)
		size := int(binary.LittleEndian.Uint16(b[2:]))
		if len(b) < 4+size {
			break
		}
		fields = append(fields, ExtraField{ID: id, Data: b[4 : 4+size : 4+size]})
		b = b[4+size:]
	}
	return fields
}

// applyZip64Extra folds the ZIP64 extended information extra field into the entry. The field
// packs 64-bit values back to back, in a fixed order, only for those header fields carrying
// their 32-bit sentinel. The field is treated as optional even where the spec requires it:
// missing values simply leave the 32-bit ones standing.
func (a *Archive) applyZip64Extra(e *Entry) {
	for _, f := range e.Extras {
		if f.ID != extraZip64ID {
			continue
		}

		data := f.Data
		take := func() (int64, bool) {
			if len(data) < 8 {
				return 0, false
			}
			v := int64(binary.LittleEndian.Uint64(data))
			data = data[8:]
			return v, true
		}

		if e.rawUncompressed32 == sentinel32 {
			if v, ok := take(); ok {
				e.UncompressedSize = v
			}
		}
		if e.rawCompressed32 == sentinel32 {
			if v, ok := take(); ok {
				e.CompressedSize = v
			}
		}
		if uint32(e.FileHeaderOffset) == sentinel32 {
			if v, ok := take(); ok {
				e.FileHeaderOffset = v
			}
		}
		return
	}
}

// escalateMaybeMac applies the per-entry evidence rules while the archive is still ambiguous.
// Callers must hold a.mu.
func (a *Archive) escalateMaybeMac(e *Entry, cdhLen int64) error {
	macLike := a.entryLooksMac(e, a.entriesRead == 0) && congruent32(e.FileHeaderOffset, a.fileCursor)

	if !macLike {
		// one spec-shaped entry settles it: the footer was truthful all along.
		a.setAsNotMacArchive()

		remaining := a.entryCount - a.entriesRead - 1
		space := a.cdOffset + a.cdSize - (a.entryCursor + cdhLen)
		if space < remaining*cdhFixedLen {
			return fmt.Errorf("%w: %d entries remain but only %d directory bytes",
				ErrInconsistentArchive, remaining, space)
		}
		return nil
	}

	// a Mac-shaped entry whose true file position passed 4 GiB while its header offset
	// still matches modulo 2^32 cannot be spec-compliant.
	if a.fileCursor >= wrap32 {
		a.setAsMacArchive()
		return nil
	}

	remaining := a.entryCount - a.entriesRead - 1
	space := a.cdEnd() - (a.entryCursor + cdhLen)

	// too little directory left for the declared count: the size wrapped (Mac), because a
	// truthful footer would have been caught by the congruence check up front.
	if space < remaining*cdhFixedLen {
		a.setAsMacArchive()
		return nil
	}

	// too much directory left for the declared count: the count wrapped.
	if remaining*cdhMaxLenMac < space {
		a.setAsMacArchive()
		return nil
	}

	return nil
}

// reconcileUncompressedSize settles or flags the entry's uncompressed size while the archive
// may be a Mac one. Callers must hold a.mu.
func (a *Archive) reconcileUncompressedSize(e *Entry) {
	if a.uncompressedSizesCertain {
		return
	}

	switch e.Method {
	case MethodStore:
		// encryption is impossible here (the Archive Utility never encrypts), so stored
		// data is byte-for-byte the file.
		e.UncompressedSize = e.CompressedSize
		e.uncompressedSizeCertain = true

	case MethodDeflate:
		// the stored size is truncated iff the true size crossed 4 GiB; only possible
		// when DEFLATE's maximum expansion of the compressed bytes reaches that far.
		if e.CompressedSize*maxDeflateRatio >= e.UncompressedSize+wrap32 {
			e.uncompressedSizeCertain = false
			if a.uncertain != nil {
				a.uncertain.add(e)
			}
		} else {
			e.uncompressedSizeCertain = true
		}
	}
}

// decodeEntryStrings populates Name and Comment and validates the name per policy.
func (a *Archive) decodeEntryStrings(e *Entry) error {
	isUTF8 := e.Flags&flagUTF8 != 0

	if name, ok := unicodePathName(e.RawName, e.Extras); ok {
		e.Name = name
	} else {
		e.Name = decodeString(e.RawName, isUTF8)
	}
	e.Comment = decodeString(e.RawComment, isUTF8)

	if a.opts.ValidateFilenames {
		name, err := ValidateFilename(e.Name, a.opts.StrictFilenames)
		if err != nil {
			return err
		}
		e.Name = name
	}

	return nil
}
