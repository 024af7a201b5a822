package lazyzip

import (
	"encoding/binary"
	"fmt"

	"github.com/nguyengg/lazyzip/rangeio"
	"github.com/valyala/bytebufferpool"
)

// findFooter locates and parses the end of central directory record, chasing the ZIP64
// locator and record when the 32-bit fields carry sentinels.
func (a *Archive) findFooter() error {
	if a.size < eocdFixedLen {
		return fmt.Errorf("%w: %d bytes is too small for a ZIP file", ErrNoEOCD, a.size)
	}

	// the EOCD must start within the last 22+65535 bytes: a fixed record plus the largest
	// possible trailing comment.
	scanLen := min(a.size, eocdFixedLen+maxCommentLen)

	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	if int64(cap(bb.B)) < scanLen {
		bb.B = make([]byte, scanLen)
	}
	bb.B = bb.B[:scanLen]

	if err := rangeio.ReadFull(a.r, bb.B, a.size-scanLen); err != nil {
		return fmt.Errorf("read archive tail error: %w", err)
	}

	// scan backward from the latest legal position. A stray signature inside the comment of
	// the real record is disambiguated by the comment-length cross-check: only the true
	// EOCD's comment-length field agrees with the bytes that actually follow it.
	for i := scanLen - eocdFixedLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(bb.B[i:]) != sigEOCD {
			continue
		}
		if int64(binary.LittleEndian.Uint16(bb.B[i+20:])) != scanLen-i-eocdFixedLen {
			continue
		}

		a.footerOffset = a.size - scanLen + i
		return a.parseFooter(bb.B[i:])
	}

	return ErrNoEOCD
}

// parseFooter decodes the EOCD at eocd (comment included) and, for ZIP64 archives, the
// locator and 64-bit record that precede it.
func (a *Archive) parseFooter(eocd []byte) error {
	var rec struct {
		Signature     uint32
		DiskNumber    uint16
		CDDiskNumber  uint16
		CDCountOnDisk uint16
		CDCount       uint16
		CDSize        uint32
		CDOffset      uint32
		CommentLength uint16
	}
	_, err := binary.Decode(eocd, binary.LittleEndian, &rec)
	if err != nil {
		return fmt.Errorf("parse end of central directory record error: %w", err)
	}

	if rec.DiskNumber != 0 || rec.CDDiskNumber != 0 {
		return fmt.Errorf("%w: archive starts on disk %d", ErrMultiDisk, rec.DiskNumber)
	}

	a.entryCount = int64(rec.CDCount)
	a.cdSize = int64(rec.CDSize)
	a.cdOffset = int64(rec.CDOffset)
	a.rawComment = append([]byte(nil), eocd[eocdFixedLen:eocdFixedLen+int(rec.CommentLength)]...)

	a.isZip64 = rec.CDCount == sentinel16 || rec.CDSize == sentinel32 || rec.CDOffset == sentinel32
	if !a.isZip64 {
		return nil
	}

	return a.parseZip64Footer()
}

// parseZip64Footer chases EOCDL -> ZIP64 EOCDR and replaces whichever footer fields still
// carry their 16/32-bit sentinels.
//
// A missing locator normally makes the archive invalid, with one exception: a Mac archive
// holding exactly 65535 entries (or a wrapped count that lands there) trips the ZIP64
// sentinel without ever writing ZIP64 records. With Mac support on, that shape downgrades to
// a maybe-Mac non-ZIP64 archive and the anchor sorts it out.
func (a *Archive) parseZip64Footer() error {
	locOffset := a.footerOffset - eocdl64Len

	var loc struct {
		Signature     uint32
		CDDiskNumber  uint32
		EOCD64Offset  uint64
		NumberOfDisks uint32
	}
	locBuf := make([]byte, eocdl64Len)
	locMissing := locOffset < 0
	if !locMissing {
		if err := rangeio.ReadFull(a.r, locBuf, locOffset); err != nil {
			return fmt.Errorf("read zip64 end of central directory locator error: %w", err)
		}
		if _, err := binary.Decode(locBuf, binary.LittleEndian, &loc); err != nil {
			return fmt.Errorf("parse zip64 end of central directory locator error: %w", err)
		}
		locMissing = loc.Signature != sigEOCDL64
	}

	if locMissing {
		if a.opts.SupportMacArchive {
			a.isZip64 = false
			a.mac = macMaybe
			return nil
		}
		return ErrBadEOCDL
	}

	if loc.CDDiskNumber != 0 || loc.NumberOfDisks != 1 {
		return fmt.Errorf("%w: zip64 locator names %d disks", ErrMultiDisk, loc.NumberOfDisks)
	}

	var rec struct {
		Signature     uint32
		RecordSize    uint64
		VersionMadeBy uint16
		VersionNeeded uint16
		DiskNumber    uint32
		CDDiskNumber  uint32
		CDCountOnDisk uint64
		CDCount       uint64
		CDSize        uint64
		CDOffset      uint64
	}
	recBuf := make([]byte, eocd64FixedLen)
	eocd64Offset := int64(loc.EOCD64Offset)
	if err := rangeio.ReadFull(a.r, recBuf, eocd64Offset); err != nil {
		return fmt.Errorf("read zip64 end of central directory record error: %w", err)
	}
	if _, err := binary.Decode(recBuf, binary.LittleEndian, &rec); err != nil {
		return fmt.Errorf("parse zip64 end of central directory record error: %w", err)
	}
	if rec.Signature != sigEOCD64 {
		return ErrBadEOCD64
	}
	if rec.DiskNumber != 0 || rec.CDDiskNumber != 0 {
		return fmt.Errorf("%w: zip64 record starts on disk %d", ErrMultiDisk, rec.DiskNumber)
	}

	if a.entryCount == sentinel16 {
		a.entryCount = int64(rec.CDCount)
	}
	if a.cdSize == sentinel32 {
		a.cdSize = int64(rec.CDSize)
	}
	if a.cdOffset == sentinel32 {
		a.cdOffset = int64(rec.CDOffset)
	}

	// the effective footer starts at whichever of the ZIP64 record and the locator comes
	// first while remaining contiguous with what follows it.
	a.footerOffset = locOffset
	if eocd64Offset+12+int64(rec.RecordSize) == locOffset {
		a.footerOffset = eocd64Offset
	}

	return nil
}
