package main

import (
	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/lazyzip/internal/cli"
)

var opts struct {
	List    cli.List    `command:"list" alias:"ls" description:"list the entries of a ZIP archive"`
	Cat     cli.Cat     `command:"cat" description:"stream one entry to stdout"`
	Extract cli.Extract `command:"extract" alias:"x" description:"extract a ZIP archive to a directory"`
}

func main() {
	_, err := flags.NewParser(&opts, flags.Default).Parse()
	exit(err)
}
