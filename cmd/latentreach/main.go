package main

import (
	"os"

	"github.com/mtoivainen/latentreach/cli"
)

func main() {
	os.Exit(cli.Execute())
}
