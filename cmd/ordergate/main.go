package main

import (
	"os"

	"github.com/rustyeddy/ordergate/cmd/ordergate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
