package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/seantiz/savina/internal/cli"
)

const (
	cmdName = "savina"

	shortDesc = "Savina benchmarks on a cell scheduler."
	longDesc  = `Savina runs actor and behaviour benchmarks on a cell scheduler.

Benchmarks can be measured from the command line, from a YAML suite file, or
submitted to the HTTP API started by "savina serve", which records every run
in SQLite and streams its progress.
`
)

func main() {
	cmd := cli.NewRootCmd(cmdName, shortDesc, longDesc)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimLeft(err.Error(), "\n"))
		os.Exit(1)
	}
}
