package lazyzip

// ZIP wire-format constants. All multi-byte integers on disk are little-endian.
//
// See https://en.wikipedia.org/wiki/ZIP_(file_format) and PKWARE's APPNOTE.TXT.
const (
	sigEOCD    = 0x06054b50 // end of central directory record
	sigEOCDL64 = 0x07064b50 // zip64 end of central directory locator
	sigEOCD64  = 0x06064b50 // zip64 end of central directory record
	sigCDH     = 0x02014b50 // central directory file header
	sigLFH     = 0x04034b50 // local file header
	sigDD      = 0x08074b50 // data descriptor

	eocdFixedLen   = 22
	eocdl64Len     = 20
	eocd64FixedLen = 56
	cdhFixedLen    = 46
	lfhFixedLen    = 30
	ddLen          = 16

	maxCommentLen = 65535

	// cdhMaxLenMac bounds a single central directory file header in a Mac Archive Utility
	// ZIP: fixed part, maximum filename, and the mandatory 12-byte extra field. The Archive
	// Utility never writes entry comments.
	cdhMaxLenMac = cdhFixedLen + 65535 + 12

	// Sentinels directing readers to the ZIP64 extended information extra field.
	sentinel16 = 0xffff
	sentinel32 = 0xffffffff

	// Extra field IDs.
	extraZip64ID       = 0x0001 // ZIP64 extended information
	extraUnicodePathID = 0x7075 // Info-ZIP unicode path
	extraMacID         = 22613  // written by the Mac OS Archive Utility, 8 data bytes

	// macVersionMadeBy is the version-made-by value the Mac OS Archive Utility stamps on
	// every central directory file header.
	macVersionMadeBy = 789

	// macLocalExtraLen is the size of each extra field as written in Mac local file
	// headers (id + length + 12 data bytes), which differs from the 12-byte central
	// directory rendition of the same field.
	macLocalExtraLen = 16

	// macDataDescriptorLen is the data descriptor the Archive Utility appends after every
	// deflated entry.
	macDataDescriptorLen = int64(ddLen)

	// General purpose flag bits.
	flagEncrypted        = 0x0001
	flagDataDescriptor   = 0x0008
	flagStrongEncryption = 0x0040
	flagUTF8             = 0x0800

	// Compression methods with registered decompressors.
	MethodStore   = uint16(0)
	MethodDeflate = uint16(8)
	MethodBzip2   = uint16(12)
	MethodZstd    = uint16(93)
	MethodXz      = uint16(95)

	// maxDeflateRatio is DEFLATE's maximum expansion factor (1032:1), used to bound how
	// large an entry could really be when its stored uncompressed size may have wrapped.
	maxDeflateRatio = int64(1032)
)

// wrap32 is the modulus the Mac OS Archive Utility silently applies to sizes and offsets.
const wrap32 = int64(1) << 32

// congruent32 reports whether a and b are equal modulo 2^32.
func congruent32(a, b int64) bool {
	return uint32(a) == uint32(b)
}

// roundUpToMultipleOf64K returns the smallest multiple of 65536 that is >= d, which is how far
// a truncated 16-bit entry count must be raised to reconcile with observed layout.
func roundUpToMultipleOf64K(d int64) int64 {
	return (d + 65535) &^ 65535
}

// minMacEntryCount is the smallest number of entries that can occupy size bytes of central
// directory in a Mac archive, every header being at most cdhMaxLenMac bytes.
func minMacEntryCount(size int64) int64 {
	return (size + cdhMaxLenMac - 1) / cdhMaxLenMac
}
