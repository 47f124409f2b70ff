package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tleino/xin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		// The usage line has already been printed
		if !errors.Is(err, cmd.ErrUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
