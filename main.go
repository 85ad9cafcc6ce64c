// The main package for the marketd executable.
package main

import (
	"github.com/tphagent/marketing-engine/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
