package main

import (
	"os"

	"github.com/rustyeddy/propdesk/cmd/propdesk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
