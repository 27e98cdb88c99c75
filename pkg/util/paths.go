package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AppName names the per-user directories the binary writes to.
const AppName = "discordstate"

// LogDir returns the directory log files are written to.
//   - Linux/Unix/macOS: ~/.log/discordstate
//   - Windows:          %APPDATA%/discordstate/Logs
func LogDir() string {
	if dir := strings.TrimSpace(platformLogDir(AppName)); dir != "" {
		return dir
	}
	return filepath.Join(".", "logs", AppName)
}

// CacheDir returns the directory for local data such as the message archive.
//   - Linux/Unix/macOS: ~/.cache/discordstate
//   - Windows:          %APPDATA%/discordstate/Cache
func CacheDir() string {
	if dir := strings.TrimSpace(platformCacheDir(AppName)); dir != "" {
		return dir
	}
	return filepath.Join(".", "cache", AppName)
}

// ArchiveDBPath returns the default SQLite message archive path.
func ArchiveDBPath() string {
	return filepath.Join(CacheDir(), "archive", "messages.db")
}

// EnsureParentDir creates the directory that will hold path.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}
