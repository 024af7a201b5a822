package cli

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/schollz/progressbar/v3"
)

// Extract implements the "extract" command.
type Extract struct {
	Dir         string `short:"d" long:"dir" description:"output directory" default:"."`
	NoOverwrite bool   `long:"no-overwrite" description:"skip files that already exist in the output directory"`
	Args        struct {
		Source flags.Filename `positional-arg-name:"archive" description:"local path or s3://bucket/key" required:"yes"`
	} `positional-args:"yes"`
}

func (c *Extract) Execute(_ []string) error {
	ctx := context.Background()
	logger := NewLogger(fmt.Sprintf(`"%s" - `, filepath.Base(string(c.Args.Source))))

	archive, err := OpenArchive(ctx, string(c.Args.Source))
	if err != nil {
		return err
	}
	defer archive.Close()

	var files, dirs int64
	for e, err := range archive.Entries() {
		if err != nil {
			return err
		}

		// filename validation already happened while reading the entry; Name is safe to
		// join below the output directory.
		name := filepath.Join(c.Dir, filepath.FromSlash(e.Name))

		if e.IsDirectory() {
			if err = os.MkdirAll(name, 0755); err != nil {
				return err
			}
			dirs++
			continue
		}

		dst, err := createExclFile(name, 0644)
		if err != nil {
			if c.NoOverwrite && os.IsExist(err) {
				continue
			}
			return err
		}

		src, err := e.OpenReadStream()
		if err != nil {
			_ = dst.Close()
			return err
		}

		bar := progressbar.DefaultBytes(e.UncompressedSize, e.Name)
		_, err = io.Copy(io.MultiWriter(dst, bar), src)
		_, _ = src.Close(), bar.Close()
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		files++
	}

	logger.Printf("extracted %d files and %d directories to %s", files, dirs, c.Dir)
	return nil
}

// createExclFile creates a new exclusive file for writing and ensures all parent directories
// to the file exist.
//
// Caller must close the file.
func createExclFile(name string, perm fs.FileMode) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return nil, err
	}

	return os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
}
