package main

import (
	"os"

	"github.com/globaldb/globaldb/cmd/globaldb/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
