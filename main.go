package main

import (
	"fmt"
	"os"

	"github.com/gre/ledger-api-countervalue/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start application: %v\n", err)
		os.Exit(1)
	}
}
