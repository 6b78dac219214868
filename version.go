package apifetch

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the library version. Commit and BuildDate may be set with
// -ldflags "-X github.com/theobix/simple-api-fetch.Commit=...".
var (
	Version   = "v0.3.0"
	Commit    = ""
	BuildDate = ""
)

// BuildInfo describes the running build.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// GetVersionInfo reports the build. Commit and BuildDate fall back to the VCS
// stamp the Go toolchain embeds, then to "unknown".
func GetVersionInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.Commit == "":
				info.Commit = s.Value
			case s.Key == "vcs.time" && info.BuildDate == "":
				info.BuildDate = s.Value
			}
		}
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.BuildDate == "" {
		info.BuildDate = "unknown"
	}
	return info
}

// GetVersion returns GetVersionInfo as one line.
func GetVersion() string {
	return GetVersionInfo().String()
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("apifetch %s (commit: %s, built: %s, go: %s)", b.Version, b.Commit, b.BuildDate, b.GoVersion)
}
