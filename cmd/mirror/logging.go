package main

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bamsammich/mirror/internal/config"
	"github.com/bamsammich/mirror/internal/ui"
)

// Rotation defaults for --log when the config file leaves them unset.
const (
	defaultLogMaxSizeMB  = 50
	defaultLogMaxBackups = 3
	defaultLogMaxAgeDays = 28
)

func logLevel(verbose, quiet bool) slog.Level {
	switch {
	case verbose:
		return slog.LevelDebug
	case quiet:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// newLogger builds the console logger on stderr and, when logFile is set, fans
// records out to a rotating JSON file that always records debug level. The
// returned closer is nil without a log file.
func newLogger(stderr io.Writer, color bool, level slog.Level, logFile string, lc config.LogConfig) (*slog.Logger, io.Closer) {
	var handler slog.Handler = tint.NewHandler(stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !color,
	})
	if logFile == "" {
		return slog.New(handler), nil
	}

	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    intOr(lc.MaxSizeMB, defaultLogMaxSizeMB),
		MaxBackups: intOr(lc.MaxBackups, defaultLogMaxBackups),
		MaxAge:     intOr(lc.MaxAgeDays, defaultLogMaxAgeDays),
	}
	fileHandler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(ui.NewMultiHandler(handler, fileHandler)), rotator
}

func stderrIsTTY() bool {
	return ui.IsTTY(os.Stderr.Fd())
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
