// Package version reports build information for the magicfolder binary.
package version

import (
	"fmt"
	"runtime"
)

// Name is the program name used in version strings and the User-Agent.
const Name = "magicfolder"

// Set via ldflags:
//
//	-X github.com/magicfolder/magicfolder/pkg/version.Version=$(VERSION)
//	-X github.com/magicfolder/magicfolder/pkg/version.Commit=$(COMMIT)
//	-X github.com/magicfolder/magicfolder/pkg/version.Date=$(DATE)
var (
	Version = "dev"
	Commit  = "unknown"

	// Date is the build date in RFC3339 format.
	Date = "unknown"
)

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String returns the one-line version with build details.
func String() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s)",
		Name, Version, Commit, Date, runtime.Version())
}

// Short returns just the version.
func Short() string {
	return Version
}

// UserAgent identifies outbound HTTP requests.
func UserAgent() string {
	return Name + "/" + Version
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
