package main

import (
	"fmt"
	"os"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := Execute(os.Args, BuildArgs{Version: version, Commit: commit, Date: date}); err != nil {
		fmt.Fprintf(os.Stderr, "waked: %s\n", err)
		os.Exit(1)
	}
}
