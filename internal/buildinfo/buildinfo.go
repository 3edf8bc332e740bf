// Package buildinfo describes the running binary. Release builds set the
// package variables at link time, e.g.
//
//	go build -ldflags "-X github.com/aidanlsb/assetcat/internal/buildinfo.Version=v0.3.0"
//
// Development builds fall back to the toolchain's embedded build info.
package buildinfo

import (
	"runtime"
	"runtime/debug"
)

var (
	Version = ""
	Commit  = ""
	Date    = ""
)

const modulePath = "github.com/aidanlsb/assetcat"

// Info is what `acat version` and the HTTP API report about a build.
type Info struct {
	Version    string `json:"version"`
	Module     string `json:"module_path"`
	Commit     string `json:"commit,omitempty"`
	CommitTime string `json:"commit_time,omitempty"`
	Modified   bool   `json:"modified"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

var readBuildInfo = debug.ReadBuildInfo

// Read collects build metadata. Link-time values take precedence over the
// embedded build info.
func Read() Info {
	info := Info{
		Version:   "devel",
		Module:    modulePath,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := readBuildInfo(); ok && bi != nil {
		info.merge(bi)
	}
	if Version != "" {
		info.Version = Version
	}
	if Commit != "" {
		info.Commit = Commit
	}
	if Date != "" {
		info.CommitTime = Date
	}
	return info
}

func (i *Info) merge(bi *debug.BuildInfo) {
	if bi.Main.Path != "" {
		i.Module = bi.Main.Path
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		i.Version = v
	}
	if bi.GoVersion != "" {
		i.GoVersion = bi.GoVersion
	}

	settings := make(map[string]string, len(bi.Settings))
	for _, s := range bi.Settings {
		settings[s.Key] = s.Value
	}
	i.Commit = settings["vcs.revision"]
	i.CommitTime = settings["vcs.time"]
	i.Modified = settings["vcs.modified"] == "true"
	if goos, goarch := settings["GOOS"], settings["GOARCH"]; goos != "" && goarch != "" {
		i.Platform = goos + "/" + goarch
	}
}
