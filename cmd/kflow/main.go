// Command kflow runs a demo pipeline described by a YAML file and inspects
// the checkpoint state it leaves behind.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
