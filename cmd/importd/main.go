// Command importd imports package sources into a dist-git instance.
//
// It runs either as a one-shot importer (importd import) or as a daemon
// consuming job files from a spool directory (importd daemon).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
