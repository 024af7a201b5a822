package rangeio

import (
	"fmt"
	"io"
	"os"
)

// File is a Reader that owns the *os.File it was opened from; Close closes the descriptor.
type File struct {
	tracker
	name string
	f    *os.File
}

var _ Reader = &File{}
var _ io.ReaderAt = &File{}

// OpenFile opens the named file as a Reader.
func OpenFile(name string) (*File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf(`open file "%s" error: %w`, name, err)
	}

	return &File{name: name, f: f}, nil
}

// Size returns the current size of the file.
func (r *File) Size() (int64, error) {
	fi, err := r.f.Stat()
	if err != nil {
		return 0, fmt.Errorf(`stat file "%s" error: %w`, r.name, err)
	}

	return fi.Size(), nil
}

func (r *File) OpenRange(off, n int64) (io.ReadCloser, error) {
	if n == 0 {
		return emptyStream{}, nil
	}
	if err := r.begin(); err != nil {
		return nil, err
	}

	return newTrackedStream(&r.tracker, io.NopCloser(io.NewSectionReader(r.f, off, n)), n), nil
}

func (r *File) ReadAt(p []byte, off int64) (int, error) {
	return r.f.ReadAt(p, off)
}

// Open reopens the file by name if the reader was closed.
func (r *File) Open() error {
	if r.IsOpen() {
		return nil
	}

	f, err := os.Open(r.name)
	if err != nil {
		return fmt.Errorf(`reopen file "%s" error: %w`, r.name, err)
	}

	r.f = f
	r.reopen()
	return nil
}

func (r *File) Close() error {
	return r.close(r.f.Close)
}

// Borrowed is a Reader over a caller-provided *os.File.
//
// The descriptor is never closed by this package: not when a range stream is closed or
// cancelled, and not when Close is called. The caller keeps ownership for the lifetime of the
// reader and beyond.
type Borrowed struct {
	tracker
	f *os.File
}

var _ Reader = &Borrowed{}
var _ io.ReaderAt = &Borrowed{}

// Borrow wraps an open file without taking ownership of it.
func Borrow(f *os.File) *Borrowed {
	return &Borrowed{f: f}
}

// Size returns the current size of the borrowed file.
func (r *Borrowed) Size() (int64, error) {
	fi, err := r.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat borrowed file error: %w", err)
	}

	return fi.Size(), nil
}

func (r *Borrowed) OpenRange(off, n int64) (io.ReadCloser, error) {
	if n == 0 {
		return emptyStream{}, nil
	}
	if err := r.begin(); err != nil {
		return nil, err
	}

	return newTrackedStream(&r.tracker, io.NopCloser(io.NewSectionReader(r.f, off, n)), n), nil
}

func (r *Borrowed) ReadAt(p []byte, off int64) (int, error) {
	return r.f.ReadAt(p, off)
}

func (r *Borrowed) Open() error {
	r.reopen()
	return nil
}

// Close stops new range streams from opening. The borrowed descriptor stays open.
func (r *Borrowed) Close() error {
	return r.close(nil)
}
