package app

import (
	"fmt"
	"strings"
)

// Version and Commit are set at build time with -ldflags "-X".
var (
	Version = "dev"
	Commit  = ""
)

func formatStartupMessage(appName, version, commit string) string {
	appName = strings.TrimSpace(appName)
	version = strings.TrimSpace(version)
	commit = strings.TrimSpace(commit)
	if len(commit) > 12 {
		commit = commit[:12]
	}

	name := appName
	if version != "" {
		name = fmt.Sprintf("%s %s", appName, version)
	}
	if commit == "" {
		return fmt.Sprintf("🚀 Starting %s...", name)
	}
	return fmt.Sprintf("🚀 Starting %s (commit %s)...", name, commit)
}

// VersionString is the one-line version report of the binary.
func VersionString(appName string) string {
	s := fmt.Sprintf("%s %s", strings.TrimSpace(appName), Version)
	if Commit != "" {
		s += " (" + Commit + ")"
	}
	return s
}
