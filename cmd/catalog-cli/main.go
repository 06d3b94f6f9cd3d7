// Command catalog-cli searches the kosher restaurant catalog from the
// terminal, exercising hybrid pagination against a live backend.
package main

import (
	"os"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
