// Package logging configures the process-wide logrus logger: level,
// stderr output, and optional rotating file sink.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/warehouse-sim/warehouse-sim/config"
)

// Setup applies the log configuration to the global logrus logger.
// Returns the rotating file writer when one was configured, so the
// caller can reuse it (e.g. as the journal sink), nil otherwise.
func Setup(cfg config.LogConfig) (*lumberjack.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)

	if cfg.File == "" {
		logrus.SetOutput(os.Stderr)
		return nil, nil
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}
	logrus.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return rotator, nil
}

// JournalSink builds a rotating writer for the JSONL action log, kept
// separate from the text log so the journal stays machine-parseable.
// Returns nil when no journal path is configured.
func JournalSink(cfg config.LogConfig) io.Writer {
	if cfg.JournalLog == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   cfg.JournalLog,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}
}
