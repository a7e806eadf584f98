// Package logging builds zerolog loggers from config.Log. Loggers are passed
// explicitly to every component; nothing here touches the zerolog globals.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goliatone/go-dataservice/config"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a logger writing JSON or console lines to stdout, a rotated
// file, or both. The returned closer releases the file, if one was opened.
func New(cfg config.Log) (zerolog.Logger, io.Closer, error) {
	return newWithStdout(cfg, os.Stdout)
}

func newWithStdout(cfg config.Log, stdout io.Writer) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("logging: %w", err)
		}
		level = parsed
	}

	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if cfg.Output == "" || cfg.Output == "stdout" || cfg.Output == "both" {
		writers = append(writers, consoleOrJSON(cfg.Format, stdout))
	}
	if cfg.Output == "file" || cfg.Output == "both" {
		file, err := fileWriter(cfg)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, err
		}
		writers = append(writers, file)
		closer = file
	}

	var out io.Writer
	if len(writers) == 1 {
		out = writers[0]
	} else {
		out = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}

// Component tags logger with the emitting component.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

func consoleOrJSON(format string, w io.Writer) io.Writer {
	if format == "console" {
		return zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "2006-01-02 15:04:05",
		}
	}
	return w
}

func fileWriter(cfg config.Log) (*lumberjack.Logger, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("logging: file output requires file_path")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
