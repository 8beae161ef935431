package main

import (
	"os"

	"ai-things/postforge/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args))
}
