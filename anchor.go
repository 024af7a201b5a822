package lazyzip

import (
	"fmt"
)

// resolveAnchor reconciles the footer's claims (entry count, central directory offset and
// size) with the physical layout those claims would imply, deciding between three verdicts:
//
//  1. spec-compliant: accept the footer verbatim;
//  2. maybe Mac: the footer is accepted verbatim but the first entry looks like Archive
//     Utility output, so later evidence may still reveal truncation;
//  3. definitely Mac: the claims were truncated modulo 2^32 / 2^16 and the true offsets,
//     sizes, and counts have been recovered.
//
// A spec-compliant archive is never classified as Mac: every Mac verdict requires either an
// impossible footer claim or a directory that only exists at a 4-GiB-displaced offset.
func (a *Archive) resolveAnchor() error {
	a.cdOffsetCertain = true
	a.cdSizeCertain = true
	a.entryCountCertain = true
	a.compressedSizesCertain = true
	a.uncompressedSizesCertain = true
	a.entryCursor = a.cdOffset
	a.fileCursor = -1

	// step 1: shapes the Archive Utility never produces end the analysis immediately. It
	// writes no archive comment, no ZIP64 records, and packs the central directory right up
	// against the footer (so even truncated, offset+size stays congruent to the footer
	// offset modulo 2^32).
	if !a.opts.SupportMacArchive || a.isZip64 || len(a.rawComment) > 0 ||
		!congruent32(a.cdOffset+a.cdSize, a.footerOffset) {
		a.mac = macNot
		return a.validateSpecLayout()
	}

	// step 2: an empty archive leaves no room for entries and nothing to probe.
	if a.entryCount == 0 && a.cdOffset+cdhFixedLen > a.footerOffset {
		if a.cdSize == 0 {
			a.mac = macNot
			return a.validateSpecLayout()
		}
		return fmt.Errorf("%w: empty archive claims a %d-byte central directory", ErrInconsistentArchive, a.cdSize)
	}

	definite := false

	// step 3: the directory cannot be smaller than 46 bytes per claimed entry. If there is
	// room to grow it up to the footer the size was truncated; otherwise the file is junk.
	if a.cdSize < a.entryCount*cdhFixedLen {
		if a.footerOffset-a.cdOffset >= a.entryCount*cdhFixedLen {
			a.cdSize = a.footerOffset - a.cdOffset
			definite = true
		} else {
			return fmt.Errorf("%w: %d entries cannot fit in a %d-byte central directory",
				ErrInconsistentArchive, a.entryCount, a.cdSize)
		}
	}

	// step 4: conversely the claimed count cannot be too small for the directory, since a
	// Mac header never exceeds cdhMaxLenMac bytes. A 16-bit-truncated count is raised by
	// the smallest multiple of 65536 that reconciles.
	if m := minMacEntryCount(a.cdSize); a.entryCount < m {
		a.entryCount += roundUpToMultipleOf64K(m - a.entryCount)
		definite = true
	}

	// step 5: probe the claimed offset. A parseable non-Mac header there proves the archive
	// spec-compliant; a Mac-looking one keeps both interpretations alive.
	if first, n, err := a.parseEntryAt(a.cdOffset); err == nil {
		if !a.entryLooksMac(first, true) {
			if definite {
				return fmt.Errorf("%w: footer claims are impossible yet the central directory is not Archive Utility output",
					ErrInconsistentArchive)
			}
			a.mac = macNot
			a.firstEntry, a.firstLen = first, n
			return a.validateSpecLayout()
		}

		a.firstEntry, a.firstLen = first, n
		if definite {
			a.setMacDefinitively()
		} else {
			a.mac = macMaybe
			a.uncertain = newUncertainSet()
		}
	} else {
		// step 6: no directory at the claimed offset, so the offset itself was
		// truncated. Search every candidate congruent modulo 2^32, highest first.
		first, n, o, found := a.searchDisplacedCD()
		if !found {
			if a.entryCount > 0 || a.cdSize > 0 {
				return fmt.Errorf("%w: no central directory at any offset congruent to %d: %w",
					ErrCDNotFound, a.cdOffset, err)
			}
			a.mac = macNot
			return a.validateSpecLayout()
		}

		a.cdOffset = o
		a.entryCursor = o
		a.firstEntry, a.firstLen = first, n
		a.setMacDefinitively()
	}

	// step 7: a definitive Mac verdict pins the directory to the footer and may reveal that
	// even per-entry compressed sizes cannot be trusted: if 4 GiB more of file data would
	// still fit under the directory, some stated size has certainly wrapped.
	if a.mac == macDefinite {
		minTotalDataSize := a.entryCount*cdhFixedLen + a.firstEntry.CompressedSize +
			int64(len(a.firstEntry.RawName)) + int64(len(a.firstEntry.Extras))*macLocalExtraLen
		if minTotalDataSize+wrap32 <= a.cdOffset {
			a.compressedSizesCertain = false
		}
	}

	// step 8: bookkeeping for what remains unsettled. A gap between the stated directory
	// end and the footer means the directory (and with it the count) may be larger than
	// reported; a directory roomy enough for 65536 extra headers leaves the count in doubt
	// even without a gap. Uncompressed sizes are doubtful for any possible Mac archive: a
	// sub-4-GiB compressed file may legitimately inflate past 4 GiB.
	if a.cdOffset+a.cdSize < a.footerOffset {
		a.cdSizeCertain = false
		a.entryCountCertain = false
	} else if (a.entryCount+65536)*cdhFixedLen <= a.cdSize {
		a.entryCountCertain = false
	}
	a.uncompressedSizesCertain = false
	a.fileCursor = 0
	a.entryCursor = a.cdOffset

	return nil
}

// setMacDefinitively is the anchor-time promotion: unlike setAsMacArchive it may run before
// the maybe-Mac machinery ever existed.
func (a *Archive) setMacDefinitively() {
	a.mac = macMaybe // so setAsMacArchive performs the full finalization
	a.setAsMacArchive()
}

// searchDisplacedCD steps downward from the largest offset congruent to the claimed one,
// 4 GiB at a time, looking for a central directory whose first header is Archive Utility
// output anchored at file offset 0.
func (a *Archive) searchDisplacedCD() (first *Entry, n, offset int64, found bool) {
	limit := a.footerOffset - max(a.cdSize, a.entryCount*cdhFixedLen)
	if limit < a.cdOffset {
		return nil, 0, 0, false
	}

	for o := a.cdOffset + (limit-a.cdOffset)/wrap32*wrap32; o >= 0; o -= wrap32 {
		e, m, err := a.parseEntryAt(o)
		if err != nil || !a.entryLooksMac(e, true) {
			continue
		}
		return e, m, o, true
	}

	return nil, 0, 0, false
}

// validateSpecLayout enforces the structural invariants a spec-compliant footer must satisfy.
func (a *Archive) validateSpecLayout() error {
	switch {
	case a.cdOffset < 0 || a.cdOffset+a.cdSize > a.footerOffset:
		return fmt.Errorf("%w: central directory [%d, %d) extends past its own footer at %d",
			ErrInconsistentArchive, a.cdOffset, a.cdOffset+a.cdSize, a.footerOffset)
	case a.entryCount*cdhFixedLen > a.cdSize:
		return fmt.Errorf("%w: %d entries cannot fit in a %d-byte central directory",
			ErrInconsistentArchive, a.entryCount, a.cdSize)
	default:
		return nil
	}
}
