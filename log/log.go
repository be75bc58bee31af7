// Package log provides a leveled, structured logger backed by zerolog. It is
// initialized with sane defaults at import time and can be reconfigured with
// Init. The w-suffixed helpers take a message plus alternating key/value pairs.
package log

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	// logTestWriterName is a special output name used by tests to redirect
	// the output to logTestWriter.
	logTestWriterName = "log_test_writer"
	// logTestTime is used by tests to have a deterministic timestamp.
	logTestTime = "2006-01-02T15:04:05Z07:00"
)

var (
	log zerolog.Logger

	// logTestWriter is the writer used when Init is called with output
	// logTestWriterName.
	logTestWriter io.Writer = os.Stdout

	// panicOnInvalidChars makes the logger panic when a message contains
	// invalid UTF-8, which usually means raw bytes were passed where a hex
	// string was expected.
	panicOnInvalidChars = os.Getenv("LOG_PANIC_ON_INVALIDCHARS") == "true"

	level = LogLevelError
)

func init() {
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		lvl = LogLevelError
	}
	Init(lvl, "stderr", nil)
}

type invalidCharChecker struct{}

func (invalidCharChecker) Run(_ *zerolog.Event, _ zerolog.Level, msg string) {
	if panicOnInvalidChars && !utf8.ValidString(msg) {
		panic(fmt.Sprintf("log message with invalid chars: %q", msg))
	}
}

// Init configures the global logger. Level must be one of debug, info, warn
// or error. Output can be stdout, stderr or a file path. If errorOutput is not
// nil, messages of level warn and above are also written there.
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
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			panic(fmt.Sprintf("cannot create log output: %v", err))
		}
		out = f
	}
	if output == "stdout" || output == "stderr" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339Nano,
			FormatCaller: func(i any) string {
				return path.Base(fmt.Sprint(i))
			},
		}
	}
	if errorOutput != nil {
		out = zerolog.MultiLevelWriter(out, &errorLevelWriter{errorOutput})
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	if output == logTestWriterName {
		zerolog.TimeFieldFormat = logTestTime
	}
	log = zerolog.New(out).With().Timestamp().CallerWithSkipFrameCount(3).Logger().Hook(invalidCharChecker{})

	switch logLevel {
	case LogLevelDebug:
		log = log.Level(zerolog.DebugLevel)
	case LogLevelInfo:
		log = log.Level(zerolog.InfoLevel)
	case LogLevelWarn:
		log = log.Level(zerolog.WarnLevel)
	case LogLevelError:
		log = log.Level(zerolog.ErrorLevel)
	default:
		panic(fmt.Sprintf("invalid log level: %q", logLevel))
	}
	level = logLevel
	log.Debug().Msgf("logger construction succeeded at level %s with output %s", logLevel, output)
}

// errorLevelWriter forwards only warn and above to the wrapped writer.
type errorLevelWriter struct {
	io.Writer
}

func (w *errorLevelWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < zerolog.WarnLevel {
		return len(p), nil
	}
	return w.Write(p)
}

// Logger returns the underlying zerolog logger.
func Logger() *zerolog.Logger {
	return &log
}

// Level returns the current log level.
func Level() string {
	return level
}

func addKeyvals(ev *zerolog.Event, keyvalues []any) *zerolog.Event {
	for i := 0; i+1 < len(keyvalues); i += 2 {
		key, ok := keyvalues[i].(string)
		if !ok {
			key = fmt.Sprint(keyvalues[i])
		}
		switch v := keyvalues[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		case []byte:
			ev = ev.Hex(key, v)
		case fmt.Stringer:
			ev = ev.Stringer(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	if len(keyvalues)%2 == 1 {
		ev = ev.Interface("EXTRA_VALUE_AT_END", keyvalues[len(keyvalues)-1])
	}
	return ev
}

func Debug(args ...any) { log.Debug().Msg(fmt.Sprint(args...)) }
func Info(args ...any)  { log.Info().Msg(fmt.Sprint(args...)) }
func Warn(args ...any)  { log.Warn().Msg(fmt.Sprint(args...)) }
func Error(args ...any) { log.Error().Msg(fmt.Sprint(args...)) }

// Fatal logs the message and exits the program, printing the stack trace.
func Fatal(args ...any) {
	log.Fatal().Msg(fmt.Sprint(args...) + "\n" + string(debug.Stack()))
}

func Debugf(template string, args ...any) { log.Debug().Msgf(template, args...) }
func Infof(template string, args ...any)  { log.Info().Msgf(template, args...) }
func Warnf(template string, args ...any)  { log.Warn().Msgf(template, args...) }
func Errorf(template string, args ...any) { log.Error().Msgf(template, args...) }
func Fatalf(template string, args ...any) { log.Fatal().Msgf(template, args...) }

func Debugw(msg string, keyvalues ...any) { addKeyvals(log.Debug(), keyvalues).Msg(msg) }
func Infow(msg string, keyvalues ...any)  { addKeyvals(log.Info(), keyvalues).Msg(msg) }
func Warnw(msg string, keyvalues ...any)  { addKeyvals(log.Warn(), keyvalues).Msg(msg) }
func Errorw(err error, msg string)        { log.Error().Err(err).Msg(msg) }

// Monitor logs a status line with the given key/value pairs, used by long
// running services to report their progress.
func Monitor(msg string, keyvalues map[string]any) {
	keys := make([]string, 0, len(keyvalues))
	for k := range keyvalues {
		keys = append(keys, k)
	}
	ev := log.Info()
	for _, k := range keys {
		ev = ev.Interface(strings.ToLower(k), keyvalues[k])
	}
	ev.Msg(msg)
}
