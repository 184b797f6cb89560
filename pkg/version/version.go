package version

import (
	"fmt"
	"runtime"
)

// Name identifies the binary in logs and the admin API.
const Name = "emr-edge-router"

// Build metadata, set with -ldflags "-X github.com/pH0enix46/EMR/pkg/version.Version=..."
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func GetInfo() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String renders the info as "name version (commit, built date)".
func (i Info) String() string {
	return fmt.Sprintf("%s %s (%s, built %s)", i.Name, i.Version, i.GitCommit, i.BuildDate)
}
