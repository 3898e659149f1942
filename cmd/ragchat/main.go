package main

import (
	"os"

	"ragchat/client/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
