// Package version reports build metadata for the CLI, the health endpoint
// and outbound User-Agent headers.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// These variables are set via ldflags during build:
//
//	-ldflags "-X aichat/pkg/version.Version=v1.2.0 -X aichat/pkg/version.Commit=$(git rev-parse HEAD)"
var (
	Version   = "dev"
	Commit    = "none"
	Date      = "unknown"
	GoVersion = runtime.Version()
)

var readBuildInfo = debug.ReadBuildInfo

// Info is the resolved build metadata.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get resolves build metadata. Values missing from ldflags fall back to the
// module version and VCS stamp embedded by `go install` / `go build`.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		Platform:  Platform(),
	}

	bi, ok := readBuildInfo()
	if !ok {
		return info
	}
	if (info.Version == "" || info.Version == "dev") && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" || info.Commit == "none" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "" || info.Date == "unknown" {
				info.Date = s.Value
			}
		}
	}
	return info
}

func Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// Summary is the short form, e.g. "v1.2.0 (abcdef0)".
func Summary() string {
	info := Get()
	v := info.Version
	if v == "" {
		v = "dev"
	}
	if info.Commit != "" && info.Commit != "none" {
		short := info.Commit
		if len(short) > 7 {
			short = short[:7]
		}
		return fmt.Sprintf("%s (%s)", v, short)
	}
	return v
}

// UserAgent is sent on outbound HTTP requests the server makes itself.
func UserAgent() string {
	return fmt.Sprintf("aichat/%s (%s)", Summary(), Platform())
}
