// Package version provides version information for the binary.
package version

import (
	"fmt"
	"runtime"
)

// Version is set at build time using -ldflags.
var Version = "dev"

// BuildTime is set at build time using -ldflags.
var BuildTime = "unknown"

// String returns the formatted version information.
func String() string {
	return fmt.Sprintf("promptpolish version %s (built %s, %s)", Version, BuildTime, runtime.Version())
}
