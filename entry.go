package lazyzip

import (
	"io"
	"strings"
	"time"
)

// ExtraField is one tagged blob from a header's extra field area.
type ExtraField struct {
	ID   uint16
	Data []byte
}

// Entry is one file, folder, or symlink record read from the central directory.
//
// The exported fields mirror the central directory file header, with ZIP64 extended
// information already folded in. UncompressedSize may be revised upward by a read stream
// while the archive's Mac Archive Utility status is unresolved; UncompressedSizeIsCertain
// reports whether it is settled.
type Entry struct {
	archive *Archive

	VersionMadeBy    uint16
	VersionNeeded    uint16
	Flags            uint16
	Method           uint16
	ModifiedTime     uint16 // DOS format, see LastModified
	ModifiedDate     uint16 // DOS format, see LastModified
	CRC32            uint32
	CompressedSize   int64
	UncompressedSize int64
	InternalAttrs    uint16
	ExternalAttrs    uint32
	FileHeaderOffset int64

	// RawName and RawComment hold the undecoded header bytes; Name and Comment are their
	// decoded forms, populated only when the archive's DecodeStrings option is on.
	RawName    []byte
	Name       string
	RawComment []byte
	Comment    string

	Extras []ExtraField

	// the 32-bit values as stored on disk, before ZIP64 or Mac reconciliation. Data
	// descriptors in Mac archives repeat these truncated values, so they must survive.
	rawCompressed32   uint32
	rawUncompressed32 uint32

	// uncompressedSizeCertain is false while UncompressedSize may still be a truncated Mac
	// value; the stream pipeline revises it on overflow. Guarded by archive.mu.
	uncompressedSizeCertain bool
	uncertainKey            uint64

	// fileDataOffset is -1 until OpenReadStream validates the local file header. Guarded by
	// archive.mu.
	fileDataOffset int64
}

// IsEncrypted reports whether the entry's file data is encrypted (general purpose bit 0).
func (e *Entry) IsEncrypted() bool {
	return e.Flags&flagEncrypted != 0
}

// IsCompressed reports whether the entry's file data is compressed (method != store).
func (e *Entry) IsCompressed() bool {
	return e.Method != MethodStore
}

// IsDirectory reports whether the entry names a directory.
func (e *Entry) IsDirectory() bool {
	if len(e.RawName) > 0 {
		return e.RawName[len(e.RawName)-1] == '/'
	}
	return strings.HasSuffix(e.Name, "/")
}

// LastModified returns the entry's modification time decoded from its DOS date and time pair,
// in UTC.
func (e *Entry) LastModified() time.Time {
	return MSDosTimeToTime(e.ModifiedDate, e.ModifiedTime)
}

// UncompressedSizeIsCertain reports whether UncompressedSize is settled. It can be false only
// while the archive may still turn out to be a Mac Archive Utility ZIP whose stored sizes
// wrapped at 4 GiB.
func (e *Entry) UncompressedSizeIsCertain() bool {
	e.archive.mu.Lock()
	defer e.archive.mu.Unlock()
	return e.uncompressedSizeCertain
}

// OpenReadStream opens a stream over the entry's file data. See Archive.OpenReadStream.
func (e *Entry) OpenReadStream(optFns ...func(*StreamOptions)) (io.ReadCloser, error) {
	return e.archive.OpenReadStream(e, optFns...)
}

// hasMacExtraField reports whether the entry carries exactly the extra field the Mac OS
// Archive Utility writes on every non-symlink entry.
func (e *Entry) hasMacExtraField() bool {
	return len(e.Extras) == 1 && e.Extras[0].ID == extraMacID && len(e.Extras[0].Data) == 8
}

// dataDescriptorLen returns the number of trailing bytes after the entry's file data in a Mac
// archive: the Archive Utility writes a data descriptor after deflated entries only.
func (e *Entry) dataDescriptorLen() int64 {
	if e.Method == MethodDeflate {
		return macDataDescriptorLen
	}
	return 0
}
