// Package buildinfo carries the version stamped at link time, e.g.
//
//	go build -ldflags "-X darpm/internal/buildinfo.Version=v1.2.0 -X darpm/internal/buildinfo.Commit=$(git rev-parse --short HEAD)"
package buildinfo

import "runtime"

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

// Info is served by /debug/info.
func Info() map[string]string {
    return map[string]string{
        "version":   Version,
        "commit":    Commit,
        "builtAt":   BuiltAt,
        "goVersion": runtime.Version(),
    }
}
