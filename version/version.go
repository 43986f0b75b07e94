// Package version resolves the build version string shown by the command
// line tools: the release tag injected at build time, or the vcs revision Go
// stamped into the binary.
package version

import "runtime/debug"

// Version is set for release builds:
// go build -ldflags "-X github.com/luddite478/fortuned/version.Version=$(git describe --dirty)"
var Version string

// VersionOrHash is Version when one was injected, otherwise the short vcs
// hash, otherwise empty (for example in go run builds).
var VersionOrHash = func() string {
	if Version != "" {
		return Version
	}
	return revision()
}()

func revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	hash, dirty := "", false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			hash = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(hash) > 7 {
		hash = hash[:7]
	}
	if dirty && hash != "" {
		hash += "-dirty"
	}
	return hash
}
