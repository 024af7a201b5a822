package lazyzip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func macFileEntry() *Entry {
	return &Entry{
		VersionMadeBy:    macVersionMadeBy,
		VersionNeeded:    20,
		Flags:            flagDataDescriptor,
		Method:           MethodDeflate,
		CompressedSize:   10,
		UncompressedSize: 20,
		RawName:          []byte("file.txt"),
		Extras:           []ExtraField{{ID: extraMacID, Data: make([]byte, 8)}},
	}
}

func TestEntryLooksMac(t *testing.T) {
	a := &Archive{}

	for _, tt := range []struct {
		name   string
		mutate func(*Entry)
		first  bool
		want   bool
	}{
		{name: "deflated file", want: true},
		{name: "first entry at offset zero", first: true, want: true},
		{name: "first entry displaced", first: true, mutate: func(e *Entry) { e.FileHeaderOffset = 8 }, want: false},
		{name: "wrong version made by", mutate: func(e *Entry) { e.VersionMadeBy = 20 }, want: false},
		{name: "has a comment", mutate: func(e *Entry) { e.RawComment = []byte("c") }, want: false},
		{name: "no extra field", mutate: func(e *Entry) { e.Extras = nil }, want: false},
		{name: "two extra fields", mutate: func(e *Entry) {
			e.Extras = append(e.Extras, ExtraField{ID: 1, Data: nil})
		}, want: false},
		{name: "deflated file name with slash", mutate: func(e *Entry) { e.RawName = []byte("file/") }, want: false},
		{name: "folder", mutate: func(e *Entry) {
			e.VersionNeeded, e.Flags, e.Method = 10, 0, MethodStore
			e.CompressedSize, e.UncompressedSize = 0, 0
			e.RawName = []byte("dir/")
		}, want: true},
		{name: "empty file", mutate: func(e *Entry) {
			e.VersionNeeded, e.Flags, e.Method = 10, 0, MethodStore
			e.CompressedSize, e.UncompressedSize = 0, 0
			e.RawName = []byte("empty.txt")
		}, want: true},
		{name: "symlink without extras", mutate: func(e *Entry) {
			e.VersionNeeded, e.Flags, e.Method = 10, 0, MethodStore
			e.CompressedSize, e.UncompressedSize = 17, 17
			e.RawName = []byte("link")
			e.Extras = nil
		}, want: true},
		{name: "symlink with trailing slash", mutate: func(e *Entry) {
			e.VersionNeeded, e.Flags, e.Method = 10, 0, MethodStore
			e.CompressedSize, e.UncompressedSize = 17, 17
			e.RawName = []byte("link/")
			e.Extras = nil
		}, want: false},
		{name: "stored with mismatched sizes", mutate: func(e *Entry) {
			e.VersionNeeded, e.Flags, e.Method = 10, 0, MethodStore
			e.CompressedSize, e.UncompressedSize = 17, 18
			e.Extras = nil
		}, want: false},
	} {
		e := macFileEntry()
		if tt.mutate != nil {
			tt.mutate(e)
		}
		assert.Equal(t, tt.want, a.entryLooksMac(e, tt.first), tt.name)
	}
}

func TestUncertainSetDrain(t *testing.T) {
	s := newUncertainSet()

	e1, e2 := macFileEntry(), macFileEntry()
	s.add(e1)
	s.add(e2)
	assert.NotZero(t, e1.uncertainKey)

	s.remove(e1.uncertainKey)
	s.drain(true)

	// only the entry still in the set at drain time is marked certain.
	assert.True(t, e2.uncompressedSizeCertain)
	assert.Zero(t, e2.uncertainKey)

	// draining twice is harmless.
	s.drain(true)
}

func TestSetAsNotMacArchiveSettlesFlags(t *testing.T) {
	a := &Archive{mac: macMaybe, uncertain: newUncertainSet()}

	e := macFileEntry()
	e.archive = a
	a.uncertain.add(e)

	a.mu.Lock()
	a.setAsNotMacArchive()
	a.mu.Unlock()

	assert.True(t, a.cdSizeCertain)
	assert.True(t, a.entryCountCertain)
	assert.True(t, a.compressedSizesCertain)
	assert.True(t, a.uncompressedSizesCertain)
	assert.EqualValues(t, -1, a.fileCursor)
	assert.True(t, e.uncompressedSizeCertain)
	assert.Nil(t, a.uncertain)

	// monotone: demotion is terminal.
	a.mu.Lock()
	a.setAsNotMacArchive()
	a.mu.Unlock()
	assert.Equal(t, macNot, a.mac)
}
