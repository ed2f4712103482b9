// Package buildinfo reports the agentone version. Release builds stamp
// the variables with -ldflags "-X"; other builds fall back to the VCS
// settings the go tool records.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var fillOnce sync.Once

// fill replaces unstamped values with vcs.revision and vcs.time.
func fill() {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && GitCommit == "unknown":
			GitCommit = s.Value
			if len(GitCommit) > 12 {
				GitCommit = GitCommit[:12]
			}
		case s.Key == "vcs.time" && BuildTime == "unknown":
			BuildTime = s.Value
		}
	}
}

// Info is the version report printed by "agentone version".
func Info() map[string]string {
	fillOnce.Do(fill)
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
}

func String() string {
	fillOnce.Do(fill)
	return fmt.Sprintf("agentone %s (%s, %s)", Version, GitCommit, BuildTime)
}

// UserAgent is sent on outbound HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("agentone/%s (+%s)", Version, runtime.GOOS)
}
