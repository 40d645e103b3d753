// The main package for the ampscan executable.
package main

import (
	"github.com/ampscan/ampscan/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
