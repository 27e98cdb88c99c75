//go:build windows

package util

import (
	"os"
	"path/filepath"
	"strings"
)

// Windows layout:
//   - Cache: %APPDATA%/<AppName>/Cache
//   - Logs:  %APPDATA%/<AppName>/Logs

func platformCacheDir(appName string) string {
	return filepath.Join(windowsAppDataBase(), sanitizeAppNameForPath(appName), "Cache")
}

func platformLogDir(appName string) string {
	return filepath.Join(windowsAppDataBase(), sanitizeAppNameForPath(appName), "Logs")
}

func windowsAppDataBase() string {
	if v := strings.TrimSpace(os.Getenv("APPDATA")); v != "" {
		return v
	}
	if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
		return filepath.Join(home, "AppData", "Roaming")
	}
	return "."
}

// Windows rejects <>:"/\|?* in directory names, and trailing dots or spaces.
func sanitizeAppNameForPath(name string) string {
	n := strings.NewReplacer(
		"/", "-", "\\", "-", "<", "-", ">", "-", ":", "-",
		"\"", "-", "|", "-", "?", "-", "*", "-",
	).Replace(strings.TrimSpace(name))
	n = strings.TrimRight(n, " .")
	if strings.TrimSpace(n) == "" {
		return AppName
	}
	return n
}
