package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Global logger instance
	Logger zerolog.Logger
)

// Options controls where log output goes.
type Options struct {
	Level string
	// File, when set, receives a copy of every log line in JSON and is rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Initialize sets up the global logger with console output only
func Initialize(logLevel string) {
	InitializeWithOptions(Options{Level: logLevel})
}

// InitializeWithOptions sets up the global logger, optionally teeing into a rotating file
func InitializeWithOptions(opts Options) {
	// Set time format to be more human-readable
	zerolog.TimeFieldFormat = time.RFC3339

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    false,
	}

	var output io.Writer = consoleWriter
	if opts.File != "" {
		output = zerolog.MultiLevelWriter(consoleWriter, FileWriter(opts))
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	zerolog.SetGlobalLevel(ParseLevel(opts.Level))

	// Replace standard log with zerolog
	log.Logger = Logger
}

// ParseLevel maps the LOG_LEVEL values onto zerolog levels, defaulting to info
func ParseLevel(logLevel string) zerolog.Level {
	switch logLevel {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	return &Logger
}

// GetForComponent returns a logger with a component field for better filtering
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// FileWriter returns a size-rotated log file writer
func FileWriter(opts Options) io.Writer {
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
}
