package lazyzip

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/require"
)

// Builders for synthetic archives: a spec-compliant writer and a Mac OS Archive Utility
// writer (streaming local headers, data descriptors, version-made-by 789, the 8-byte 22613
// extra field, and a 16-bit-truncated entry count). No binary fixtures.

type testFile struct {
	name      string
	data      []byte // plaintext: sizes and CRC are computed from it
	rawData   []byte // pre-compressed payload for methods the builder cannot produce itself
	method    uint16
	encrypted bool // traditional encryption: flag bit 0 and a 12-byte header before the data
	comment   string
}

var testModified = time.Date(2024, time.March, 9, 10, 20, 30, 0, time.UTC)

// findCDOffset reads the central directory offset out of a comment-less EOCD.
func findCDOffset(archive []byte) int64 {
	return int64(binary.LittleEndian.Uint32(archive[len(archive)-6:]))
}

func deflateBytes(t *testing.T, fw *flate.Writer, b []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	fw.Reset(&buf)
	_, err := fw.Write(b)
	require.NoError(t, err)
	require.NoError(t, fw.Close())
	return buf.Bytes()
}

func put16(w *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.Write(b[:])
}

func put32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func put64(w *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

// buildSpecArchive lays files out per PKZIP: real sizes in local headers, no data
// descriptors. Returns the archive bytes and each entry's raw file-data section for
// partial-range comparisons.
func buildSpecArchive(t *testing.T, files []testFile, comment string) ([]byte, map[string][]byte) {
	t.Helper()

	fw, err := flate.NewWriter(nil, flate.DefaultCompression)
	require.NoError(t, err)

	dosDate, dosTime := TimeToMSDosTime(testModified)
	raw := make(map[string][]byte, len(files))

	type record struct {
		f            testFile
		crc          uint32
		fileData     []byte
		headerOffset int64
	}
	records := make([]record, 0, len(files))

	var buf bytes.Buffer
	for _, f := range files {
		r := record{f: f, crc: crc32.ChecksumIEEE(f.data), headerOffset: int64(buf.Len())}

		switch {
		case f.rawData != nil:
			r.fileData = f.rawData
		case f.method == MethodDeflate:
			r.fileData = deflateBytes(t, fw, f.data)
		default:
			r.fileData = f.data
		}
		if f.encrypted {
			r.fileData = append(bytes.Repeat([]byte{0xA5}, 12), r.fileData...)
		}
		raw[f.name] = r.fileData

		var flags uint16
		if f.encrypted {
			flags |= flagEncrypted
		}

		put32(&buf, sigLFH)
		put16(&buf, 20)
		put16(&buf, flags)
		put16(&buf, f.method)
		put16(&buf, dosTime)
		put16(&buf, dosDate)
		put32(&buf, r.crc)
		put32(&buf, uint32(len(r.fileData)))
		put32(&buf, uint32(len(f.data)))
		put16(&buf, uint16(len(f.name)))
		put16(&buf, 0)
		buf.WriteString(f.name)
		buf.Write(r.fileData)

		records = append(records, r)
	}

	cdOffset := int64(buf.Len())
	for _, r := range records {
		var flags uint16
		if r.f.encrypted {
			flags |= flagEncrypted
		}

		put32(&buf, sigCDH)
		put16(&buf, 20) // version made by
		put16(&buf, 20) // version needed
		put16(&buf, flags)
		put16(&buf, r.f.method)
		put16(&buf, dosTime)
		put16(&buf, dosDate)
		put32(&buf, r.crc)
		put32(&buf, uint32(len(r.fileData)))
		put32(&buf, uint32(len(r.f.data)))
		put16(&buf, uint16(len(r.f.name)))
		put16(&buf, 0)
		put16(&buf, uint16(len(r.f.comment)))
		put16(&buf, 0)
		put16(&buf, 0)
		put32(&buf, 0)
		put32(&buf, uint32(r.headerOffset))
		buf.WriteString(r.f.name)
		buf.WriteString(r.f.comment)
	}
	cdSize := int64(buf.Len()) - cdOffset

	put32(&buf, sigEOCD)
	put16(&buf, 0)
	put16(&buf, 0)
	put16(&buf, uint16(len(records)))
	put16(&buf, uint16(len(records)))
	put32(&buf, uint32(cdSize))
	put32(&buf, uint32(cdOffset))
	put16(&buf, uint16(len(comment)))
	buf.WriteString(comment)

	return buf.Bytes(), raw
}

// macEntryKind picks the Archive Utility shape for a test file.
func macEntryKind(f testFile) (folder, symlink bool) {
	folder = len(f.name) > 0 && f.name[len(f.name)-1] == '/'
	symlink = !folder && f.method == MethodStore && len(f.data) > 0
	return
}

// buildMacArchive lays files out the way the Mac OS Archive Utility does: streaming local
// headers with zeroed CRC and sizes, data descriptors after deflated entries, widened local
// extra fields, and a 16-bit entry count that silently wraps past 65535.
func buildMacArchive(t *testing.T, files []testFile) ([]byte, map[string][]byte) {
	t.Helper()

	fw, err := flate.NewWriter(nil, flate.DefaultCompression)
	require.NoError(t, err)

	dosDate, dosTime := TimeToMSDosTime(testModified)
	raw := make(map[string][]byte, len(files))
	macExtraData := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	type record struct {
		f              testFile
		crc            uint32
		fileData       []byte
		headerOffset   int64
		folder, symlnk bool
	}
	records := make([]record, 0, len(files))

	var buf bytes.Buffer
	for _, f := range files {
		r := record{f: f, crc: crc32.ChecksumIEEE(f.data), headerOffset: int64(buf.Len())}
		r.folder, r.symlnk = macEntryKind(f)

		r.fileData = f.data
		if f.method == MethodDeflate {
			r.fileData = deflateBytes(t, fw, f.data)
		}
		raw[f.name] = r.fileData

		var flags uint16
		versionNeeded := uint16(10)
		if f.method == MethodDeflate {
			flags, versionNeeded = flagDataDescriptor, 20
		}

		// local header: the Archive Utility streams, so CRC and sizes are zero here and
		// each extra field is written in its widened 16-byte form.
		localExtraLen := uint16(0)
		if !r.symlnk {
			localExtraLen = macLocalExtraLen
		}
		put32(&buf, sigLFH)
		put16(&buf, versionNeeded)
		put16(&buf, flags)
		put16(&buf, f.method)
		put16(&buf, dosTime)
		put16(&buf, dosDate)
		put32(&buf, 0)
		put32(&buf, 0)
		put32(&buf, 0)
		put16(&buf, uint16(len(f.name)))
		put16(&buf, localExtraLen)
		buf.WriteString(f.name)
		if !r.symlnk {
			put16(&buf, extraMacID)
			put16(&buf, 12)
			buf.Write(macExtraData)
			put32(&buf, 0)
		}
		buf.Write(r.fileData)

		if f.method == MethodDeflate {
			put32(&buf, sigDD)
			put32(&buf, r.crc)
			put32(&buf, uint32(len(r.fileData)))
			put32(&buf, uint32(len(f.data)))
		}

		records = append(records, r)
	}

	cdOffset := int64(buf.Len())
	for _, r := range records {
		var flags uint16
		versionNeeded := uint16(10)
		if r.f.method == MethodDeflate {
			flags, versionNeeded = flagDataDescriptor, 20
		}

		extraLen := uint16(0)
		if !r.symlnk {
			extraLen = 12 // id + length + 8 data bytes
		}

		put32(&buf, sigCDH)
		put16(&buf, macVersionMadeBy)
		put16(&buf, versionNeeded)
		put16(&buf, flags)
		put16(&buf, r.f.method)
		put16(&buf, dosTime)
		put16(&buf, dosDate)
		put32(&buf, r.crc)
		put32(&buf, uint32(len(r.fileData)))
		put32(&buf, uint32(len(r.f.data)))
		put16(&buf, uint16(len(r.f.name)))
		put16(&buf, extraLen)
		put16(&buf, 0)
		put16(&buf, 0)
		put16(&buf, 0)
		put32(&buf, 0)
		put32(&buf, uint32(r.headerOffset))
		buf.WriteString(r.f.name)
		if !r.symlnk {
			put16(&buf, extraMacID)
			put16(&buf, 8)
			buf.Write(macExtraData)
		}
	}
	cdSize := int64(buf.Len()) - cdOffset

	put32(&buf, sigEOCD)
	put16(&buf, 0)
	put16(&buf, 0)
	put16(&buf, uint16(len(records))) // wraps at 65536, as the Archive Utility does
	put16(&buf, uint16(len(records)))
	put32(&buf, uint32(cdSize))
	put32(&buf, uint32(cdOffset))
	put16(&buf, 0)

	return buf.Bytes(), raw
}
