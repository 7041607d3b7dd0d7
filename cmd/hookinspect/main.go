// Command hookinspect checks the offsets table against module files on
// disk and against a running host.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
