// Package log provides the category loggers used across the module.
//
// Each category is a *slog.Logger with a JSON handler writing to the console and, once
// SetupLogger has run, to a size-rotated file in the log directory. Before SetupLogger the
// loggers write to the console only, so packages can log from tests and init paths.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Category selects one of the log streams.
type Category int

const (
	Application Category = iota
	Discord
	Database
	Error
)

var categoryFiles = map[Category]string{
	Application: "application.log",
	Discord:     "discord_events.log",
	Database:    "database.log",
	Error:       "error.log",
}

// Options tunes file rotation. Zero values fall back to the defaults below.
type Options struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      slog.Level
}

const (
	defaultMaxSizeMB  = 20
	defaultMaxBackups = 5
	defaultMaxAgeDays = 14
)

type state struct {
	loggers map[Category]*slog.Logger
	files   []*lumberjack.Logger
	dir     string
}

var (
	mu      sync.RWMutex
	current *state
	level   = new(slog.LevelVar)
)

func consoleState() *state {
	s := &state{loggers: make(map[Category]*slog.Logger, len(categoryFiles))}
	for cat := range categoryFiles {
		s.loggers[cat] = newLogger(consoleWriter(cat), cat)
	}
	return s
}

func consoleWriter(cat Category) io.Writer {
	if cat == Error {
		return os.Stderr
	}
	return os.Stdout
}

func newLogger(w io.Writer, cat Category) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With(slog.String("category", cat.String()))
}

func (c Category) String() string {
	name, ok := categoryFiles[c]
	if !ok {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return strings.TrimSuffix(name, ".log")
}

// SetupLogger opens rotated log files under dir for every category. Calling it again with
// the same dir is a no-op; a different dir closes the previous files first.
func SetupLogger(dir string, opts Options) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return fmt.Errorf("setup logger: empty log directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("setup logger: create %s: %w", dir, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if current != nil && current.dir == dir {
		return nil
	}
	if current != nil {
		closeFiles(current)
	}

	level.Set(opts.Level)
	s := &state{loggers: make(map[Category]*slog.Logger, len(categoryFiles)), dir: dir}
	for cat, file := range categoryFiles {
		lj := &lumberjack.Logger{
			Filename:   filepath.Join(dir, file),
			MaxSize:    orDefault(opts.MaxSizeMB, defaultMaxSizeMB),
			MaxBackups: orDefault(opts.MaxBackups, defaultMaxBackups),
			MaxAge:     orDefault(opts.MaxAgeDays, defaultMaxAgeDays),
			Compress:   true,
		}
		s.files = append(s.files, lj)
		s.loggers[cat] = newLogger(io.MultiWriter(consoleWriter(cat), lj), cat)
	}
	current = s
	slog.SetDefault(s.loggers[Application])
	return nil
}

// Sync closes the log files. Loggers keep working on the console afterwards.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return nil
	}
	err := closeFiles(current)
	current = nil
	return err
}

func closeFiles(s *state) error {
	var first error
	for _, f := range s.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

var (
	fallbackOnce sync.Once
	fallback     *state
)

// For returns the logger of a category.
func For(cat Category) *slog.Logger {
	mu.RLock()
	s := current
	mu.RUnlock()
	if s == nil {
		fallbackOnce.Do(func() { fallback = consoleState() })
		s = fallback
	}
	if l, ok := s.loggers[cat]; ok {
		return l
	}
	return s.loggers[Application]
}

// ApplicationLogger returns the general-purpose logger.
func ApplicationLogger() *slog.Logger { return For(Application) }

// DiscordLogger returns the logger for gateway and session activity.
func DiscordLogger() *slog.Logger { return For(Discord) }

// DatabaseLogger returns the logger for the message archive.
func DatabaseLogger() *slog.Logger { return For(Database) }

// ErrorLoggerRaw returns the logger that only receives errors.
func ErrorLoggerRaw() *slog.Logger { return For(Error) }

// SetLevel changes the minimum level of every category.
func SetLevel(l slog.Level) { level.Set(l) }
