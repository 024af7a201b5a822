package lazyzip

import (
	"encoding/binary"
	"fmt"

	"github.com/nguyengg/lazyzip/rangeio"
)

// resolveCompressedSize confirms or corrects e.CompressedSize when the archive is a Mac one
// whose stated per-entry sizes may have wrapped at 4 GiB, and decides whether entries after
// this one can still be in doubt. Callers must hold a.mu; the entry cursor has not advanced
// yet, so a.entriesRead does not count e.
//
// The Archive Utility writes a data descriptor after every deflated entry; a wrapped size
// shows up as that descriptor sitting a multiple of 4 GiB beyond where the stated size says.
func (a *Archive) resolveCompressedSize(e *Entry) error {
	fileDataIfMac := a.fileCursor + lfhFixedLen + int64(len(e.RawName)) + int64(len(e.Extras))*macLocalExtraLen
	afterEntry := fileDataIfMac + e.CompressedSize + e.dataDescriptorLen()
	remaining := a.entryCount - a.entriesRead - 1

	// once the space after this entry cannot hide another 4 GiB (minimal local headers for
	// every remaining entry included), no future size can be wrong either.
	if a.cdOffset-afterEntry < remaining*lfhFixedLen+wrap32 {
		a.compressedSizesCertain = true
		return nil
	}

	// the last entry of a confirmed Mac archive must consume everything up to the
	// directory; any shortfall is truncation and must be a whole number of wraps.
	if a.mac == macDefinite && remaining == 0 {
		total := a.cdOffset - fileDataIfMac - e.dataDescriptorLen()
		diff := total - e.CompressedSize
		if diff < 0 || diff%wrap32 != 0 {
			return fmt.Errorf(`%w: last entry "%s" does not line up with the central directory`,
				ErrMissingDataDescriptor, e.RawName)
		}
		e.CompressedSize = total
		return nil
	}

	// stored entries are folders, empty files, or symlinks, all far below 4 GiB.
	if e.Method == MethodStore {
		return nil
	}

	for pos := fileDataIfMac + e.CompressedSize; pos+ddLen <= a.cdOffset; pos += wrap32 {
		ok, err := a.matchDataDescriptor(e, pos)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if grow := pos - (fileDataIfMac + e.CompressedSize); grow > 0 {
			e.CompressedSize += grow
			a.setAsMacArchive()
		}
		return nil
	}

	// no descriptor at any candidate position: this cannot be Archive Utility output.
	switch a.mac {
	case macMaybe:
		a.setAsNotMacArchive()
		return nil
	case macDefinite:
		return fmt.Errorf(`%w: entry "%s"`, ErrMissingDataDescriptor, e.RawName)
	default:
		return errLogicFailure
	}
}

// matchDataDescriptor reports whether a data descriptor for e sits at pos: correct signature,
// the entry's (truncated) CRC and sizes, and a plausible successor — either another local file
// header or the central directory immediately after.
func (a *Archive) matchDataDescriptor(e *Entry, pos int64) (bool, error) {
	buf := make([]byte, ddLen)
	if err := rangeio.ReadFull(a.r, buf, pos); err != nil {
		return false, fmt.Errorf("read data descriptor error: %w", err)
	}

	if binary.LittleEndian.Uint32(buf) != sigDD ||
		binary.LittleEndian.Uint32(buf[4:]) != e.CRC32 ||
		binary.LittleEndian.Uint32(buf[8:]) != e.rawCompressed32 ||
		binary.LittleEndian.Uint32(buf[12:]) != e.rawUncompressed32 {
		return false, nil
	}

	if pos+ddLen == a.cdOffset {
		return true, nil
	}

	next := make([]byte, 4)
	if err := rangeio.ReadFull(a.r, next, pos+ddLen); err != nil {
		return false, fmt.Errorf("read data descriptor error: %w", err)
	}
	return binary.LittleEndian.Uint32(next) == sigLFH, nil
}
