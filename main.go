package main

import (
	"os"

	"github.com/groundctl/passplan/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
