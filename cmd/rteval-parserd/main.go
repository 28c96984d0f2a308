package main

import (
	"os"

	"github.com/JonMunkholm/rteval-parser/cmd/rteval-parserd/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
