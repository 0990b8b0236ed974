// Command taskkeeper supervises background tasks: it runs them on a bounded
// worker pool, sweeps terminated tasks away, restarts the ones stopped for a
// restart and serves their progress over HTTP.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
