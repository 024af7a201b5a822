package lazyzip

// Options customises how an archive is opened and iterated.
type Options struct {
	// DecodeStrings controls whether filenames and comments are decoded to text (CP437 or
	// UTF-8 per the language-encoding flag, with the Info-ZIP unicode path extra field
	// taking precedence when its CRC matches).
	//
	// Default to true. When false, only the Raw fields are populated.
	DecodeStrings bool

	// ValidateEntrySizes compares compressed and uncompressed sizes for stored entries and
	// verifies the uncompressed byte count at the end of decompressed streams.
	//
	// Default to true.
	ValidateEntrySizes bool

	// ValidateFilenames rejects unsafe paths: absolute paths, Windows drive prefixes, and
	// ".." traversal segments.
	//
	// Default to true.
	ValidateFilenames bool

	// StrictFilenames rejects backslashes in filenames instead of translating them to
	// forward slashes.
	//
	// Default to false.
	StrictFilenames bool

	// SupportMacArchive enables recovery of archives written by the Mac OS Archive
	// Utility, which truncates sizes, offsets, and entry counts modulo 2^32 / 2^16 instead
	// of using ZIP64. Spec-compliant archives are never misread with this on.
	//
	// Default to true.
	SupportMacArchive bool
}

func defaultOptions() Options {
	return Options{
		DecodeStrings:      true,
		ValidateEntrySizes: true,
		ValidateFilenames:  true,
		StrictFilenames:    false,
		SupportMacArchive:  true,
	}
}

// StreamOptions customises one OpenReadStream call.
//
// The three tri-state fields default to nil ("auto"): Decompress follows Entry.IsCompressed,
// Decrypt follows Entry.IsEncrypted, and ValidateCRC32 is on exactly when the stream is not
// being decompressed.
type StreamOptions struct {
	// Decompress controls whether file data is run through the registered decompressor.
	Decompress *bool

	// Decrypt requests decryption, which is not supported: a stream over an encrypted
	// entry fails unless Decrypt is explicitly false (raw bytes).
	Decrypt *bool

	// ValidateCRC32 verifies the stream's CRC32 against the entry's on completion. It
	// cannot be combined with a partial range (the CRC covers the whole file).
	ValidateCRC32 *bool

	// Start and End bound the byte range [Start, End) of the compressed stream to read.
	// Partial ranges cannot be combined with Decompress.
	Start *int64
	End   *int64
}

// Bool returns a pointer to v for use with the tri-state StreamOptions fields.
func Bool(v bool) *bool {
	return &v
}

// Int64 returns a pointer to v for use with StreamOptions.Start and StreamOptions.End.
func Int64(v int64) *int64 {
	return &v
}
