package main

import (
	"os"

	"github.com/egv/autotask/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
