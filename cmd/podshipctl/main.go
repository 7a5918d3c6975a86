// Command podshipctl is the operator-facing control surface for the
// podcast pipeline: drive episodes through their stage plan, poll feeds,
// inspect cost, and settle review gates.
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
