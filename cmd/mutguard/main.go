package main

import (
	"os"

	"github.com/solatis/mutguard/cmd/mutguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
