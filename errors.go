package lazyzip

import "errors"

var (
	// ErrNoEOCD is returned when the end of central directory record cannot be found; the
	// source is most likely not a ZIP file.
	ErrNoEOCD = errors.New("end of central directory record not found")

	// ErrBadEOCDL is returned on a bad ZIP64 end of central directory locator signature.
	ErrBadEOCDL = errors.New("invalid zip64 end of central directory locator signature")

	// ErrBadEOCD64 is returned on a bad ZIP64 end of central directory record signature.
	ErrBadEOCD64 = errors.New("invalid zip64 end of central directory record signature")

	// ErrBadCDH is returned on a bad central directory file header signature.
	ErrBadCDH = errors.New("invalid central directory file header signature")

	// ErrBadLFH is returned on a bad local file header signature.
	ErrBadLFH = errors.New("invalid local file header signature")

	// ErrMultiDisk is returned for archives spanning multiple disks.
	ErrMultiDisk = errors.New("multi-disk archives are not supported")

	// ErrStrongEncryption is returned for entries using strong (AES) encryption.
	ErrStrongEncryption = errors.New("strong encryption is not supported")

	// ErrDecryptionUnsupported is returned when a read stream is asked to decrypt.
	ErrDecryptionUnsupported = errors.New("decryption is not supported")

	// ErrUnsupportedMethod is returned when no decompressor is registered for an entry's
	// compression method.
	ErrUnsupportedMethod = errors.New("unsupported compression method")

	// ErrChecksum is returned when a stream's CRC32 does not match the entry's.
	ErrChecksum = errors.New("crc32 mismatch")

	// ErrSizeMismatch is returned when an entry's byte counts do not line up: too many or
	// too few bytes during inflation, or compressed != uncompressed for a stored entry.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrMissingDataDescriptor is returned when a Mac archive entry's data descriptor cannot
	// be located where the entry layout requires one.
	ErrMissingDataDescriptor = errors.New("missing data descriptor")

	// ErrReentrantRead is returned by ReadEntry when a previous ReadEntry has not settled.
	ErrReentrantRead = errors.New("cannot read entry before previous read has settled")

	// ErrInvalidRange is returned for out-of-range or unusable Start/End stream options.
	ErrInvalidRange = errors.New("invalid byte range")

	// ErrForeignEntry is returned when an entry from a different archive is passed to
	// OpenReadStream.
	ErrForeignEntry = errors.New("entry does not belong to this archive")

	// ErrInconsistentArchive is returned when the end of central directory record's claims
	// cannot be reconciled with the physical layout of the file.
	ErrInconsistentArchive = errors.New("inconsistent central directory size and entry count")

	// ErrCDNotFound is returned when the central directory cannot be located at any offset
	// congruent with the one the footer claims.
	ErrCDNotFound = errors.New("central directory not found")

	// ErrInvalidFileDataLocation is returned when an entry's local file header or file data would
	// extend past the footer (the end of central directory records).
	ErrInvalidFileDataLocation = errors.New("invalid location for file data")

	// ErrMisidentifiedMac is returned when an archive confirmed as written by the Mac OS
	// Archive Utility turns out to violate that dialect after all.
	ErrMisidentifiedMac = errors.New("misidentified Mac OS Archive Utility ZIP")

	// ErrRelativePath is returned by filename validation for ".." path segments.
	ErrRelativePath = errors.New("relative path in filename")

	// ErrAbsolutePath is returned by filename validation for absolute or drive-prefixed
	// paths.
	ErrAbsolutePath = errors.New("absolute path in filename")

	// ErrInvalidCharacters is returned by filename validation for backslashes under
	// StrictFilenames.
	ErrInvalidCharacters = errors.New("invalid characters in filename")

	// errLogicFailure guards branches the maybe-Mac state machine should never reach.
	errLogicFailure = errors.New("logic failure; please raise an issue")
)
