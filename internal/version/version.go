package version

import "fmt"

// Set via -ldflags at release build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Full returns the complete version banner.
func Full() string {
	return fmt.Sprintf("whispertype %s, commit %s, built at %s", Version, Commit, Date)
}
