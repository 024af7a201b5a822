package lazyzip

import (
	"bytes"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func TestDecompressorRegistry(t *testing.T) {
	plaintext := bytes.Repeat([]byte("all work and no play makes jack a dull boy\n"), 20)

	compressBzip2 := func() []byte {
		var buf bytes.Buffer
		w, err := bzip2.NewWriter(&buf, nil)
		require.NoError(t, err)
		_, err = w.Write(plaintext)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		return buf.Bytes()
	}

	compressZstd := func() []byte {
		var buf bytes.Buffer
		w, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		_, err = w.Write(plaintext)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		return buf.Bytes()
	}

	compressXz := func() []byte {
		var buf bytes.Buffer
		w, err := xz.NewWriter(&buf)
		require.NoError(t, err)
		_, err = w.Write(plaintext)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		return buf.Bytes()
	}

	archive, _ := buildSpecArchive(t, []testFile{
		{name: "a.bz2.bin", data: plaintext, rawData: compressBzip2(), method: MethodBzip2},
		{name: "a.zst.bin", data: plaintext, rawData: compressZstd(), method: MethodZstd},
		{name: "a.xz.bin", data: plaintext, rawData: compressXz(), method: MethodXz},
	}, "")

	a, err := FromBuffer(archive)
	require.NoError(t, err)
	defer a.Close()

	for e, err := range a.Entries() {
		require.NoError(t, err)

		b, err := ReadAll(mustStream(t, e))
		require.NoError(t, err, e.Name)
		assert.Equal(t, plaintext, b, e.Name)
	}
}

func TestDecompressorLookup(t *testing.T) {
	_, ok := decompressor(MethodDeflate)
	assert.True(t, ok)
	_, ok = decompressor(42)
	assert.False(t, ok)
}
