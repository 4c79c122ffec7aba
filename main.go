// The main package for the stacklytics executable.
package main

import (
	"stacklytics/cmd"
)

func main() {
	cmd.Execute()
}
