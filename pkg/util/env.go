package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvWithLocalBinFallback returns the value of the named environment variable.
//
// Before reading it, the file $HOME/.local/bin/.env is loaded when it exists. Variables
// already present in the environment are never overwritten, and no .env is read from the
// working directory.
func LoadEnvWithLocalBinFallback(name string) (string, error) {
	envPath := localBinEnvPath()
	if envPath != "" {
		if info, err := os.Stat(envPath); err == nil && !info.IsDir() {
			_ = godotenv.Load(envPath)
		}
	}

	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	if envPath == "" {
		return "", fmt.Errorf("environment variable %q not set and home directory unresolved", name)
	}
	return "", fmt.Errorf("environment variable %q not set; fallback file %s did not define it", name, envPath)
}

func localBinEnvPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".local", "bin", ".env")
}

// EnvInt64 parses the variable as an integer, returning def when unset or malformed.
func EnvInt64(name string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}
