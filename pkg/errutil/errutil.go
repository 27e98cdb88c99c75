// Package errutil runs fallible operations and reports their failures on the error log.
package errutil

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/small-frappuccino/discordstate/pkg/log"
)

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

var errNilFunc = errors.New("nil function provided")

// InitializeGlobalErrorHandler sets the logger used by the helpers. The last non-nil logger wins.
func InitializeGlobalErrorHandler(l *slog.Logger) error {
	if l == nil {
		return fmt.Errorf("nil logger provided")
	}
	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

func current() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l == nil {
		return log.ErrorLoggerRaw()
	}
	return l
}

// HandleDiscordError executes fn and logs its error as a Discord failure.
// The error is returned unmodified.
func HandleDiscordError(operation string, fn func() error) error {
	if fn == nil {
		return errNilFunc
	}
	err := fn()
	if err == nil {
		return nil
	}
	current().Error("Discord operation failed", "operation", operation, "error", err)
	return err
}

// HandleStorageError executes fn and logs its error as an archive failure, wrapping it with the operation.
func HandleStorageError(operation string, fn func() error) error {
	if fn == nil {
		return errNilFunc
	}
	err := fn()
	if err == nil {
		return nil
	}
	current().Error("Storage operation failed", "operation", operation, "error", err)
	return fmt.Errorf("storage %s: %w", operation, err)
}

// HandleConfigError executes fn and logs its error as a configuration failure.
func HandleConfigError(operation, path string, fn func() error) error {
	if fn == nil {
		return errNilFunc
	}
	err := fn()
	if err == nil {
		return nil
	}
	current().Error("Config operation failed", "operation", operation, "path", path, "error", err)
	return fmt.Errorf("config %s %s: %w", operation, path, err)
}
