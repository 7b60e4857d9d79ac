package main

import (
	"fmt"
	"os"

	warpforge "github.com/warpforge/engine/cmd/warpforge"
)

func main() {
	if err := warpforge.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
