// Package main is the entry point for the Auris network audio tap.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/auris/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
