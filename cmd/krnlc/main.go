package main

import (
	"os"

	"github.com/notargets/krnl/cmd/krnlc/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
