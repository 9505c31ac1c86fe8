package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mrz1836/courier/internal/fileutil"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

// Log formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// ParseLevel parses off, error, warn, info or debug. Empty means error.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none", "disabled":
		return zerolog.Disabled, nil
	case "", "error":
		return zerolog.ErrorLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	default:
		return zerolog.NoLevel, invalid("logging.level", s)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds a logger from cfg. With File set, output is appended
// to that file, created 0600 with its parent directory; otherwise it goes
// to stderr. The returned closer releases the file.
func NewLogger(cfg LoggingConfig) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}
	if level == zerolog.Disabled {
		return zerolog.Nop(), nopCloser{}, nil
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
		toFile           = cfg.File != ""
	)
	if toFile {
		path := expandHome(cfg.File)
		if err := os.MkdirAll(filepath.Dir(path), fileutil.PrivateDir); err != nil {
			return zerolog.Nop(), nopCloser{}, courierr.Wrap(err, "creating log directory")
		}
		// #nosec G304 -- log file path is from validated config
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileutil.PrivateFile)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, courierr.Wrap(err, "opening log file")
		}
		out, closer = f, f
	}

	if cfg.Format == FormatConsole {
		out = zerolog.ConsoleWriter{Out: out, NoColor: toFile, TimeFormat: "2006-01-02 15:04:05.000"}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), closer, nil
}
