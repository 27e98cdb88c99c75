//go:build !windows

package util

import (
	"os"
	"path/filepath"
	"strings"
)

// Unix-like layout, macOS included:
//   - Cache: ~/.cache/<AppName>
//   - Logs:  ~/.log/<AppName>

func platformCacheDir(appName string) string {
	return filepath.Join(platformHomeDir(), ".cache", sanitizeAppNameForPath(appName))
}

func platformLogDir(appName string) string {
	return filepath.Join(platformHomeDir(), ".log", sanitizeAppNameForPath(appName))
}

func platformHomeDir() string {
	if h := strings.TrimSpace(os.Getenv("HOME")); h != "" {
		return h
	}
	if h, err := os.UserHomeDir(); err == nil && strings.TrimSpace(h) != "" {
		return h
	}
	return "."
}

func sanitizeAppNameForPath(name string) string {
	n := strings.TrimSpace(name)
	n = strings.NewReplacer("/", "-", "\\", "-", "\x00", "").Replace(n)
	if n = strings.TrimSpace(n); n == "" {
		return AppName
	}
	return n
}
