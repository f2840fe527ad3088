// Package version implements the --version flag shared by both
// cmd/ entrypoints.
package version

import (
	"fmt"
	"os"
)

// Version is the aggregation engine's release string.
const Version = "1.0"

// HasVersionArg reports whether the process was invoked with a
// version flag as its first argument.
func HasVersionArg() bool {
	if len(os.Args) > 1 {
		arg := os.Args[1]
		return arg == "--version" || arg == "-version" || arg == "-v" || arg == "--v"
	}
	return false
}

// ShowVersion prints the release string to stdout.
func ShowVersion(component string) {
	fmt.Printf("%s v%s\n", component, Version)
}
