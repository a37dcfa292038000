// Package main is the entry point for the dispatch API server.
// Its sole responsibility is parsing the command line and wiring
// dependencies together. No business logic belongs here.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
