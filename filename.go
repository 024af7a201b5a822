package lazyzip

import (
	"fmt"
	"hash/crc32"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// decodeString decodes raw header bytes into text: UTF-8 when the language-encoding flag says
// so, CP437 otherwise (the encoding PKZIP predates Unicode with).
func decodeString(raw []byte, isUTF8 bool) string {
	if isUTF8 {
		return string(raw)
	}

	s, err := charmap.CodePage437.NewDecoder().Bytes(raw)
	if err != nil {
		// CP437 maps every byte; the decoder cannot actually fail, but don't lose the
		// name if it somehow does.
		return string(raw)
	}
	return string(s)
}

// unicodePathName returns the UTF-8 filename from an Info-ZIP unicode path extra field, if the
// entry carries one whose embedded CRC32 still matches the raw header filename.
func unicodePathName(rawName []byte, extras []ExtraField) (string, bool) {
	for _, f := range extras {
		if f.ID != extraUnicodePathID || len(f.Data) < 5 {
			continue
		}
		if f.Data[0] != 1 {
			// unknown version; the raw name is the better bet.
			continue
		}

		nameCRC := uint32(f.Data[1]) | uint32(f.Data[2])<<8 | uint32(f.Data[3])<<16 | uint32(f.Data[4])<<24
		if crc32.ChecksumIEEE(rawName) != nameCRC {
			// the main filename changed after the field was written; field is stale.
			continue
		}

		if name := f.Data[5:]; utf8.Valid(name) {
			return string(name), true
		}
	}

	return "", false
}

// ValidateFilename checks name against the path-safety policy and returns the (possibly
// translated) result.
//
// Backslashes fail with ErrInvalidCharacters when strict is true and are translated to forward
// slashes otherwise. Absolute paths (leading slash or Windows drive prefix) fail with
// ErrAbsolutePath; ".." path segments fail with ErrRelativePath.
func ValidateFilename(name string, strict bool) (string, error) {
	if strings.ContainsRune(name, '\\') {
		if strict {
			return name, fmt.Errorf(`%w: backslash in "%s"`, ErrInvalidCharacters, name)
		}
		name = strings.ReplaceAll(name, "\\", "/")
	}

	if strings.HasPrefix(name, "/") {
		return name, fmt.Errorf(`%w: "%s"`, ErrAbsolutePath, name)
	}
	if len(name) >= 2 && name[1] == ':' &&
		(('A' <= name[0] && name[0] <= 'Z') || ('a' <= name[0] && name[0] <= 'z')) {
		return name, fmt.Errorf(`%w: windows drive prefix in "%s"`, ErrAbsolutePath, name)
	}

	for seg := range strings.SplitSeq(name, "/") {
		if seg == ".." {
			return name, fmt.Errorf(`%w: ".." segment in "%s"`, ErrRelativePath, name)
		}
	}

	return name, nil
}
