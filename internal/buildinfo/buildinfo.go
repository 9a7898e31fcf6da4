// Package buildinfo carries version metadata stamped with -ldflags, falling back
// to the VCS details the Go toolchain embeds.
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

func Info() map[string]string {
	info := map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info["go"] = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info["commit"] == "" {
				info["commit"] = s.Value
			}
		case "vcs.time":
			if info["builtAt"] == "" {
				info["builtAt"] = s.Value
			}
		case "vcs.modified":
			info["dirty"] = s.Value
		}
	}
	return info
}
