package lazyzip

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/nguyengg/lazyzip/rangeio"
)

// OpenReadStream opens a stream over an entry's file data.
//
// By default the stream yields the decompressed file contents with the uncompressed size
// verified at the end (per the ValidateEntrySizes option); raw streams, which stored entries
// get by default, verify the CRC32 instead. See StreamOptions for partial ranges and overrides. Multiple streams may be open and
// read concurrently; closing one never affects another or the archive.
func (a *Archive) OpenReadStream(e *Entry, optFns ...func(*StreamOptions)) (io.ReadCloser, error) {
	if e == nil || e.archive != a {
		return nil, ErrForeignEntry
	}

	var opts StreamOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	decompress := e.IsCompressed()
	if opts.Decompress != nil {
		decompress = *opts.Decompress
	}
	decrypt := e.IsEncrypted()
	if opts.Decrypt != nil {
		decrypt = *opts.Decrypt
	}
	if decrypt {
		return nil, ErrDecryptionUnsupported
	}

	if decompress {
		if _, ok := decompressor(e.Method); !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedMethod, e.Method)
		}
	}

	a.mu.Lock()
	compressedSize := e.CompressedSize
	a.mu.Unlock()

	start, end := int64(0), compressedSize
	if opts.Start != nil {
		start = *opts.Start
	}
	if opts.End != nil {
		end = *opts.End
	}
	if start < 0 || end < start || end > compressedSize {
		return nil, fmt.Errorf("%w: [%d, %d) of %d compressed bytes", ErrInvalidRange, start, end, compressedSize)
	}

	partial := start != 0 || end != compressedSize
	validateCRC := !decompress
	if opts.ValidateCRC32 != nil {
		validateCRC = *opts.ValidateCRC32
	}
	if partial {
		if decompress {
			return nil, fmt.Errorf("%w: partial ranges require a raw stream", ErrInvalidRange)
		}
		if opts.ValidateCRC32 != nil && *opts.ValidateCRC32 {
			return nil, fmt.Errorf("%w: the crc32 covers the whole file", ErrInvalidRange)
		}
		validateCRC = false
	}

	fileDataOffset, err := a.resolveFileDataOffset(e)
	if err != nil {
		return nil, err
	}

	// the local header read suspends, so sizes may have been revised meanwhile; a default
	// full-range stream follows the revision.
	a.mu.Lock()
	compressedSize = e.CompressedSize
	footerOffset := a.footerOffset
	a.mu.Unlock()
	if opts.End == nil && !partial {
		end = compressedSize
	}
	if fileDataOffset+compressedSize > footerOffset {
		return nil, fmt.Errorf("%w: file data [%d, %d) crosses the footer at %d",
			ErrInvalidFileDataLocation, fileDataOffset, fileDataOffset+compressedSize, footerOffset)
	}

	raw, err := a.r.OpenRange(fileDataOffset+start, end-start)
	if err != nil {
		return nil, err
	}

	s := &entryStream{r: raw, closers: []io.Closer{raw}}
	if decompress && e.Method != MethodStore {
		d, _ := decompressor(e.Method)
		dec := d(s.r)
		s.r, s.closers = dec, append(s.closers, dec)

		if a.opts.ValidateEntrySizes {
			s.r = &sizeValidatingReader{r: s.r, a: a, e: e}
		}
	}
	if validateCRC {
		s.r = &crcValidatingReader{r: s.r, want: e.CRC32, digest: crc32.NewIEEE()}
	}

	return s, nil
}

// resolveFileDataOffset validates the entry's local file header and caches where its file
// data starts. The Mac rendition of the header is recognizable on sight, so this is also a
// resolution point for a maybe-Mac archive.
func (a *Archive) resolveFileDataOffset(e *Entry) (int64, error) {
	a.mu.Lock()
	if e.fileDataOffset >= 0 {
		v := e.fileDataOffset
		a.mu.Unlock()
		return v, nil
	}
	footerOffset := a.footerOffset
	a.mu.Unlock()

	if e.FileHeaderOffset < 0 || e.FileHeaderOffset+lfhFixedLen > footerOffset {
		return 0, fmt.Errorf("%w: local file header at %d crosses the footer at %d",
			ErrInvalidFileDataLocation, e.FileHeaderOffset, footerOffset)
	}

	buf := make([]byte, lfhFixedLen)
	if err := rangeio.ReadFull(a.r, buf, e.FileHeaderOffset); err != nil {
		return 0, fmt.Errorf("read local file header error: %w", err)
	}
	if binary.LittleEndian.Uint32(buf) != sigLFH {
		return 0, fmt.Errorf("%w: got 0x%08x at offset %d",
			ErrBadLFH, binary.LittleEndian.Uint32(buf), e.FileHeaderOffset)
	}

	localCRC := binary.LittleEndian.Uint32(buf[14:])
	localCompressed := binary.LittleEndian.Uint32(buf[18:])
	localUncompressed := binary.LittleEndian.Uint32(buf[22:])
	nameLen := int64(binary.LittleEndian.Uint16(buf[26:]))
	extraLen := int64(binary.LittleEndian.Uint16(buf[28:]))

	fileDataOffset := e.FileHeaderOffset + lfhFixedLen + nameLen + extraLen

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mac != macNot {
		// the Archive Utility streams every entry: the local header carries zeros for
		// the CRC and sizes (they live in the data descriptor), repeats the filename
		// length, and widens each extra field to 16 bytes.
		macLocal := localCRC == 0 && localCompressed == 0 && localUncompressed == 0 &&
			nameLen == int64(len(e.RawName)) && extraLen == int64(len(e.Extras))*macLocalExtraLen
		if !macLocal {
			if a.mac == macDefinite {
				return 0, fmt.Errorf(`%w: local file header of "%s" is not Archive Utility output`,
					ErrMisidentifiedMac, e.RawName)
			}
			a.setAsNotMacArchive()
		}
	}

	if e.fileDataOffset < 0 {
		e.fileDataOffset = fileDataOffset
	}
	return e.fileDataOffset, nil
}

// entryStream is the composed pipeline handed to callers. Close tears the transforms down in
// reverse order and never touches other streams or the archive's reader lifecycle.
type entryStream struct {
	r       io.Reader
	closers []io.Closer
}

func (s *entryStream) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *entryStream) Close() error {
	var err *multierror.Error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierror.Append(err, s.closers[i].Close())
	}
	return err.ErrorOrNil()
}

// sizeValidatingReader counts post-inflate bytes against the entry's expected uncompressed
// size. Overflow past a size still marked uncertain is the Mac truncation showing itself: the
// expectation grows by 4 GiB (settling a maybe-Mac archive in the process) and the stream
// carries on.
type sizeValidatingReader struct {
	r io.Reader
	a *Archive
	e *Entry
	n int64
}

func (v *sizeValidatingReader) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	v.n += int64(n)

	v.a.mu.Lock()
	for v.n > v.e.UncompressedSize {
		if v.e.uncompressedSizeCertain {
			v.a.mu.Unlock()
			return n, fmt.Errorf(`%w: entry "%s" inflated past %d bytes`,
				ErrSizeMismatch, v.e.RawName, v.e.UncompressedSize)
		}
		v.e.UncompressedSize += wrap32
		if v.a.mac == macMaybe {
			v.a.setAsMacArchive()
		}
	}

	if err != nil && errors.Is(err, io.EOF) {
		if v.n < v.e.UncompressedSize {
			v.a.mu.Unlock()
			return n, fmt.Errorf(`%w: entry "%s" inflated to %d of %d bytes`,
				ErrSizeMismatch, v.e.RawName, v.n, v.e.UncompressedSize)
		}

		// the observed count settles the size for good.
		v.e.uncompressedSizeCertain = true
		if v.e.uncertainKey != 0 && v.a.uncertain != nil {
			v.a.uncertain.remove(v.e.uncertainKey)
			v.e.uncertainKey = 0
		}
	}
	v.a.mu.Unlock()

	return n, err
}

// crcValidatingReader verifies the streamed bytes' CRC32 against the entry's on completion.
type crcValidatingReader struct {
	r      io.Reader
	digest hash.Hash32
	want   uint32
}

func (v *crcValidatingReader) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	_, _ = v.digest.Write(p[:n])

	if err != nil && errors.Is(err, io.EOF) {
		if got := v.digest.Sum32(); got != v.want {
			return n, fmt.Errorf("%w: got 0x%08x, expected 0x%08x", ErrChecksum, got, v.want)
		}
	}
	return n, err
}
