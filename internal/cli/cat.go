package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/lazyzip"
)

// Cat implements the "cat" command: stream one entry to stdout.
type Cat struct {
	Raw  bool `long:"raw" description:"do not decompress; write the stored bytes as-is"`
	Args struct {
		Source flags.Filename `positional-arg-name:"archive" description:"local path or s3://bucket/key" required:"yes"`
		Name   string         `positional-arg-name:"name" description:"entry to print" required:"yes"`
	} `positional-args:"yes"`
}

func (c *Cat) Execute(_ []string) error {
	ctx := context.Background()

	archive, err := OpenArchive(ctx, string(c.Args.Source))
	if err != nil {
		return err
	}
	defer archive.Close()

	for e, err := range archive.Entries() {
		if err != nil {
			return err
		}
		if e.Name != c.Args.Name {
			continue
		}

		src, err := e.OpenReadStream(func(opts *lazyzip.StreamOptions) {
			if c.Raw {
				opts.Decompress = lazyzip.Bool(false)
				opts.ValidateCRC32 = lazyzip.Bool(false)
			}
		})
		if err != nil {
			return err
		}

		_, err = io.Copy(os.Stdout, src)
		if cerr := src.Close(); err == nil {
			err = cerr
		}
		return err
	}

	return fmt.Errorf(`entry "%s" not found in "%s"`, c.Args.Name, c.Args.Source)
}
