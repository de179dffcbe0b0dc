// Package main provides the Catosphere admin CLI.
package main

import (
	"fmt"
	"os"

	"github.com/catosphere/catosphere-go/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
