package buildinfo

import (
	"fmt"
	"runtime"
)

// set via ldflags
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// UserAgent is sent with every request unless the config overrides it.
func UserAgent() string {
	return fmt.Sprintf("mangasync/%s (%s; %s)", Version, runtime.GOOS, runtime.GOARCH)
}
