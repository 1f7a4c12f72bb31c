package cmd

import (
	"fmt"
	goruntime "runtime"
	"runtime/debug"

	"github.com/dotcommander/connectchat/internal/storage"
)

// BuildInfo is injected at link time.
type BuildInfo struct {
	Version   string
	CommitSHA string
}

func shortSHA(sha string) string {
	if len(sha) < storage.SHA1Short {
		return ""
	}
	return sha[:storage.SHA1Short]
}

// versionTemplate renders the name, version, short commit, Go version and
// platform.
func versionTemplate(b BuildInfo) string {
	v := "{{.Name}} {{.Version}}"
	if sha := shortSHA(b.CommitSHA); sha != "" {
		v += " (" + sha + ")"
	}
	return v + fmt.Sprintf(" %s %s/%s\n", goruntime.Version(), goruntime.GOOS, goruntime.GOARCH)
}

// normalizeBuildInfo fills in what the linker did not set from the VCS data
// embedded by the Go toolchain.
func normalizeBuildInfo(b BuildInfo) BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		if b.Version == "" {
			b.Version = "unknown"
		}
		return b
	}
	if b.Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}

	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if b.CommitSHA == "" {
		b.CommitSHA = rev
	}
	if b.Version != "" {
		return b
	}

	b.Version = "dev"
	if sha := shortSHA(rev); sha != "" {
		b.Version += "-" + sha
	}
	if dirty {
		b.Version += "-dirty"
	}
	return b
}
