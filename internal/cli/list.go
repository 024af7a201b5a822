package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
)

// List implements the "list" command.
type List struct {
	Long bool `short:"l" long:"long" description:"also show packed size, method, and CRC32"`
	Args struct {
		Source flags.Filename `positional-arg-name:"archive" description:"local path or s3://bucket/key" required:"yes"`
	} `positional-args:"yes"`
}

func (c *List) Execute(_ []string) error {
	ctx := context.Background()

	archive, err := OpenArchive(ctx, string(c.Args.Source))
	if err != nil {
		return err
	}
	defer archive.Close()

	w := tabwriter.NewWriter(os.Stdout, 2, 8, 2, ' ', 0)
	if c.Long {
		_, _ = fmt.Fprintln(w, "SIZE\tPACKED\tMETHOD\tCRC32\tMODIFIED\tNAME")
	} else {
		_, _ = fmt.Fprintln(w, "SIZE\tMODIFIED\tNAME")
	}

	var n int64
	for e, err := range archive.Entries() {
		if err != nil {
			return err
		}

		n++
		if c.Long {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%08x\t%s\t%s\n",
				humanize.IBytes(uint64(e.UncompressedSize)),
				humanize.IBytes(uint64(e.CompressedSize)),
				e.Method,
				e.CRC32,
				e.LastModified().Format("2006-01-02 15:04:05"),
				e.Name)
		} else {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n",
				humanize.IBytes(uint64(e.UncompressedSize)),
				e.LastModified().Format("2006-01-02 15:04:05"),
				e.Name)
		}
	}
	if err = w.Flush(); err != nil {
		return err
	}

	switch {
	case archive.IsMacArchive():
		_, _ = fmt.Fprintf(os.Stderr, "%d entries (Mac OS Archive Utility ZIP)\n", n)
	case archive.IsMaybeMacArchive():
		_, _ = fmt.Fprintf(os.Stderr, "%d entries (possibly Mac OS Archive Utility ZIP)\n", n)
	default:
		_, _ = fmt.Fprintf(os.Stderr, "%d entries\n", n)
	}

	return nil
}
