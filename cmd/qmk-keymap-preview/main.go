package main

import (
	"os"

	"qmk-keymap-preview/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
