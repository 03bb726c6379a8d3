package main

import (
	"os"

	"github.com/conneroisu/searchd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
