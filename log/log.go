// Package log provides the project logger, a thin layer over zerolog with
// formatted and key-value flavored helpers.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// The available log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
	LogLevelFatal = "fatal"
)

const (
	// logTestWriterName can be passed as Init's output to write to
	// logTestWriter, for testing purposes.
	logTestWriterName = "_testWriter"

	timeFormat = "2006-01-02T15:04:05Z07:00"
)

var (
	log   zerolog.Logger
	level string

	// logTestWriter is the io.Writer used when Init is called with
	// logTestWriterName as output.
	logTestWriter io.Writer = io.Discard

	// panicOnInvalidChars indicates whether the log functions should panic
	// when a message contains invalid UTF-8, to catch binary data being
	// logged without an %x verb. Enabled via LOG_PANIC_ON_INVALIDCHARS=true,
	// meant for tests only.
	panicOnInvalidChars = os.Getenv("LOG_PANIC_ON_INVALIDCHARS") == "true"
)

func init() {
	// Allow the logger to be used before Init is called.
	Init(LogLevelInfo, "stderr", nil)
}

// Logger returns the underlying zerolog instance.
func Logger() *zerolog.Logger { return &log }

// Level returns the current log level name, as passed to Init.
func Level() string { return level }

// Init initializes the logger with the given level and output. The output
// can be "stdout", "stderr" or a file path. If errorOutput is not nil, all
// messages of level error or above are duplicated there.
func Init(logLevel, output string, errorOutput io.Writer) {
	var out io.Writer
	switch output {
	case "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	case logTestWriterName:
		out = logTestWriter
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			panic(fmt.Sprintf("cannot create log output: %v", err))
		}
		out = f
	}
	out = zerolog.ConsoleWriter{Out: out, TimeFormat: timeFormat}
	if errorOutput != nil {
		out = zerolog.MultiLevelWriter(out, errorLevelWriter{errorOutput})
	}
	log = zerolog.New(out).With().Timestamp().Logger()
	zerolog.TimeFieldFormat = timeFormat

	switch strings.ToLower(logLevel) {
	case LogLevelDebug:
		log = log.Level(zerolog.DebugLevel)
	case LogLevelInfo:
		log = log.Level(zerolog.InfoLevel)
	case LogLevelWarn:
		log = log.Level(zerolog.WarnLevel)
	case LogLevelError:
		log = log.Level(zerolog.ErrorLevel)
	case LogLevelFatal:
		log = log.Level(zerolog.FatalLevel)
	default:
		panic(fmt.Sprintf("invalid log level: %q", logLevel))
	}
	level = strings.ToLower(logLevel)
	log.Debug().Msgf("logger construction succeeded at level %s with output %s", logLevel, output)
}

// errorLevelWriter duplicates error, fatal and panic messages to a second
// writer, typically a file collecting only failures.
type errorLevelWriter struct {
	w io.Writer
}

func (*errorLevelWriter) Write(p []byte) (int, error) { return len(p), nil }

func (lw errorLevelWriter) WriteLevel(lvl zerolog.Level, p []byte) (int, error) {
	if lvl < zerolog.ErrorLevel {
		return len(p), nil
	}
	return lw.w.Write(p)
}

func checkInvalidChars(s string) string {
	if panicOnInvalidChars && !utf8.ValidString(s) {
		panic(fmt.Sprintf("log message with invalid UTF-8: %q", s))
	}
	return s
}

// withKeyValues appends alternating key-value pairs to a zerolog event. Keys
// that are not strings are formatted with %v; a trailing key without a value
// is dropped.
func withKeyValues(ev *zerolog.Event, keyvalues ...any) *zerolog.Event {
	for i := 0; i+1 < len(keyvalues); i += 2 {
		key, ok := keyvalues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyvalues[i])
		}
		ev = ev.Interface(key, keyvalues[i+1])
	}
	return ev
}

// Debug sends a debug message composed of the given arguments.
func Debug(args ...any) {
	log.Debug().Msg(checkInvalidChars(fmt.Sprint(args...)))
}

// Debugf sends a formatted debug message.
func Debugf(template string, args ...any) {
	log.Debug().Msg(checkInvalidChars(fmt.Sprintf(template, args...)))
}

// Debugw sends a debug message with alternating key-value pairs.
func Debugw(msg string, keyvalues ...any) {
	withKeyValues(log.Debug(), keyvalues...).Msg(checkInvalidChars(msg))
}

// Info sends an info message composed of the given arguments.
func Info(args ...any) {
	log.Info().Msg(checkInvalidChars(fmt.Sprint(args...)))
}

// Infof sends a formatted info message.
func Infof(template string, args ...any) {
	log.Info().Msg(checkInvalidChars(fmt.Sprintf(template, args...)))
}

// Infow sends an info message with alternating key-value pairs.
func Infow(msg string, keyvalues ...any) {
	withKeyValues(log.Info(), keyvalues...).Msg(checkInvalidChars(msg))
}

// Warn sends a warning message composed of the given arguments.
func Warn(args ...any) {
	log.Warn().Msg(checkInvalidChars(fmt.Sprint(args...)))
}

// Warnf sends a formatted warning message.
func Warnf(template string, args ...any) {
	log.Warn().Msg(checkInvalidChars(fmt.Sprintf(template, args...)))
}

// Warnw sends a warning message with alternating key-value pairs.
func Warnw(msg string, keyvalues ...any) {
	withKeyValues(log.Warn(), keyvalues...).Msg(checkInvalidChars(msg))
}

// Error sends an error message composed of the given arguments.
func Error(args ...any) {
	log.Error().Msg(checkInvalidChars(fmt.Sprint(args...)))
}

// Errorf sends a formatted error message.
func Errorf(template string, args ...any) {
	log.Error().Msg(checkInvalidChars(fmt.Sprintf(template, args...)))
}

// Errorw sends an error message wrapping the given error.
func Errorw(err error, msg string) {
	log.Error().Err(err).Msg(checkInvalidChars(msg))
}

// Fatal sends a fatal message and terminates the program.
func Fatal(args ...any) {
	log.Fatal().Msg(checkInvalidChars(fmt.Sprint(args...)))
}

// Fatalf sends a formatted fatal message and terminates the program.
func Fatalf(template string, args ...any) {
	log.Fatal().Msg(checkInvalidChars(fmt.Sprintf(template, args...)))
}

// Fatalw sends a fatal message wrapping the given error and terminates the
// program.
func Fatalw(err error, msg string) {
	log.Fatal().Err(err).Msg(checkInvalidChars(msg))
}
