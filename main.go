// The main package for the dealwatch executable.
package main

import (
	"github.com/JakeFAU/dealwatch/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
