package main

import (
	"os"

	"github.com/harun/surveyor/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
