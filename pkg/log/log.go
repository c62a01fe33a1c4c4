package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger, initialized once by Init at process start.
// Every package-level helper and field-tagged child logger derives from it.
var Logger zerolog.Logger

// Level is one of the four levels Init accepts; anything else falls back
// to InfoLevel.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var levels = map[Level]zerolog.Level{
	DebugLevel: zerolog.DebugLevel,
	InfoLevel:  zerolog.InfoLevel,
	WarnLevel:  zerolog.WarnLevel,
	ErrorLevel: zerolog.ErrorLevel,
}

// Config controls Init.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer // defaults to os.Stdout
}

// Init builds the global Logger from cfg. Called once at startup, before
// any package derives a logger from it with WithComponent.
func Init(cfg Config) {
	level, ok := levels[cfg.Level]
	if !ok {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	Logger = zerolog.New(writer(cfg)).With().Timestamp().Logger()
}

// writer picks the output sink: a plain JSON stream, or a console writer
// that formats timestamps and colorizes level names for a terminal.
func writer(cfg Config) io.Writer {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.JSONOutput {
		return output
	}
	return zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
}

// field returns a child of the global logger with one string field set.
// WithComponent, WithInstance and WithWorker are named wrappers over this
// for the fields fleetd's own packages tag their log lines with.
func field(key, value string) zerolog.Logger {
	return Logger.With().Str(key, value).Logger()
}

// WithComponent tags a logger with the package or loop it belongs to
// ("scheduler", "dispatcher", "leader", ...). Every long-lived type holds
// one of these as a field rather than reaching for the global Logger.
func WithComponent(component string) zerolog.Logger {
	return field("component", component)
}

// WithInstance tags a logger with the formation-scoped instance name
// ("<service>.<id>") a reconciliation pass is currently acting on.
func WithInstance(name string) zerolog.Logger {
	return field("instance", name)
}

// WithWorker tags a logger with the worker ID a dispatch or poll call is
// directed at.
func WithWorker(workerID string) zerolog.Logger {
	return field("worker", workerID)
}
