package version

import "fmt"

// Name is the service name reported by health checks and startup logs.
const Name = "Wayfarer"

// Overridden at build time:
//
//	go build -ldflags "-X github.com/wayfarer-erp/backend/internal/version.Commit=$(git rev-parse HEAD)"
var (
	Version   = "0.1.0"
	Commit    = ""
	BuildDate = ""
)

// Full returns Version, suffixed with the short commit when one was stamped.
func Full() string {
	if Commit == "" {
		return Version
	}
	short := Commit
	if len(short) > 7 {
		short = short[:7]
	}
	return fmt.Sprintf("%s+%s", Version, short)
}

// Info describes the running build.
type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
}

// Current returns the stamped build information.
func Current() Info {
	return Info{Service: Name, Version: Version, Commit: Commit, BuildDate: BuildDate}
}
