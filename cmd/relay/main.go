// Command relay posts a random meme from the feed to the platform every 30
// minutes until it is stopped or hits an unrecoverable error.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	ctx := context.Background()

	// run gets the OS fundamentals as arguments so tests can drive it.
	if err := run(ctx, os.Args, os.Getenv, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
