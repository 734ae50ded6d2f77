// Command de runs differential evolution against the built-in benchmark
// objectives.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
