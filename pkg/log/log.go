// Package log builds the process logger of the kflow command.
package log

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Format selects the log output.
type Format string

const (
	// FormatAuto uses FormatText on terminals and FormatJSON elsewhere.
	FormatAuto Format = ""
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type Options struct {
	Level  slog.Level
	Format Format
	// Output defaults to stderr.
	Output io.Writer
}

// New returns a slog logger. Text output goes through tint; JSON output is
// written by zerolog, bridged via logr.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	terminal := false
	if f, ok := out.(*os.File); ok {
		terminal = isatty.IsTerminal(f.Fd())
	}

	format := opts.Format
	if format == FormatAuto {
		format = FormatJSON
		if terminal && os.Getenv("KUBERNETES_SERVICE_HOST") == "" {
			format = FormatText
		}
	}

	if format == FormatText {
		return slog.New(tint.NewHandler(out, &tint.Options{
			Level:      opts.Level,
			TimeFormat: "15:04:05.000",
			NoColor:    !terminal,
		}))
	}
	return slog.New(logr.ToSlogHandler(zerologr.New(newZerolog(out, opts.Level))))
}

func newZerolog(out io.Writer, level slog.Level) *zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerologr.NameFieldName = "logger"
	zerologr.NameSeparator = "/"

	zl := zerolog.New(out).With().Timestamp().Logger()
	switch {
	case level <= slog.LevelDebug:
		// slog debug arrives as V(4).
		zerologr.SetMaxV(4)
		zl = zl.Level(zerolog.TraceLevel)
	case level <= slog.LevelInfo:
		zl = zl.Level(zerolog.InfoLevel)
	case level <= slog.LevelWarn:
		zl = zl.Level(zerolog.WarnLevel)
	default:
		zl = zl.Level(zerolog.ErrorLevel)
	}
	return &zl
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(s))
	return l, err
}
