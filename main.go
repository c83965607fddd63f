package main

import (
	"os"

	"github.com/mason-build/mason/internal/cmd"
)

const masonVersion = "0.1.0"

func main() {
	os.Exit(cmd.RunWithArgs(os.Args[1:], masonVersion))
}
