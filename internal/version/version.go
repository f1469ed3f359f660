// Package version holds build metadata, overridden via -ldflags.
package version

import "runtime"

var (
	Version = "dev"     // e.g., v1.2.3 or git describe output
	Commit  = "none"    // short git SHA
	Date    = "unknown" // build UTC timestamp
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	AppID     string `json:"app_id"`
}

func Get(appID string) Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		AppID:     appID,
	}
}

// String is the one-line form printed by the version command.
func (i Info) String() string {
	s := i.AppID + " " + i.Version
	if i.Commit != "" && i.Commit != "none" {
		s += " (" + i.Commit + ")"
	}
	return s + " built " + i.Date + " with " + i.GoVersion
}
