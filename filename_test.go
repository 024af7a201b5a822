package lazyzip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFilename(t *testing.T) {
	for _, tt := range []struct {
		name   string
		strict bool
		want   string
		err    error
	}{
		{name: "a/b/c.txt", want: "a/b/c.txt"},
		{name: "dir/", want: "dir/"},
		{name: `a\b.txt`, want: "a/b.txt"},
		{name: `a\b.txt`, strict: true, err: ErrInvalidCharacters},
		{name: "/etc/passwd", err: ErrAbsolutePath},
		{name: "C:stuff", err: ErrAbsolutePath},
		{name: "z:/stuff", err: ErrAbsolutePath},
		{name: "../evil", err: ErrRelativePath},
		{name: "a/../b", err: ErrRelativePath},
		{name: "a/..b/c", want: "a/..b/c"},
		{name: "..dots.txt", want: "..dots.txt"},
	} {
		got, err := ValidateFilename(tt.name, tt.strict)
		if tt.err != nil {
			assert.ErrorIs(t, err, tt.err, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestDecodeStringASCIIIdentity(t *testing.T) {
	// for all-ASCII names, CP437 and UTF-8 decoding are both the identity.
	for _, name := range []string{"", "readme.txt", "dir/sub/file-1_2.TXT", "~!@#$%^&()"} {
		assert.Equal(t, name, decodeString([]byte(name), false), "cp437")
		assert.Equal(t, name, decodeString([]byte(name), true), "utf8")
	}
}

func TestDecodeStringCP437(t *testing.T) {
	// 0x81 is u-umlaut in CP437.
	assert.Equal(t, "m\u00fcnchen.txt", decodeString([]byte{'m', 0x81, 'n', 'c', 'h', 'e', 'n', '.', 't', 'x', 't'}, false))
}
