package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dotecxy/legado2-sub001/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultLogFile = "logs/bookrule.log"

var (
	defaultLogger *slog.Logger
	loggerMutex   sync.RWMutex
)

// InitLogger initializes the global logger with the given configuration
func InitLogger(cfg config.LoggerConfig) error {
	writer, err := createWriter(cfg)
	if err != nil {
		return fmt.Errorf("failed to create log writer: %w", err)
	}

	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	defaultLogger = slog.New(newHandler(writer, cfg))
	slog.SetDefault(defaultLogger)
	return nil
}

func newHandler(w io.Writer, cfg config.LoggerConfig) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       parseLogLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: replaceAttr,
	}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// replaceAttr shortens source paths and names debug sink states
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.SourceKey:
		if source, ok := a.Value.Any().(*slog.Source); ok && source != nil {
			source.File = filepath.Base(source.File)
		}
	case "state":
		if a.Value.Kind() == slog.KindInt64 {
			return slog.String("state", StateName(int(a.Value.Int64())))
		}
	}
	return a
}

// GetLogger returns the default logger
func GetLogger() *slog.Logger {
	loggerMutex.RLock()
	defer loggerMutex.RUnlock()

	if defaultLogger == nil {
		return slog.Default()
	}
	return defaultLogger
}

// L returns a logger from context or the default logger
func L(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(contextKeyLogger).(*slog.Logger); ok {
			return logger
		}
	}
	return GetLogger()
}

// WithContext returns a new context with the logger
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKeyLogger, logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// createWriter opens the configured outputs. "both" means stdout plus file.
func createWriter(cfg config.LoggerConfig) (io.Writer, error) {
	var writers []io.Writer
	switch output := strings.ToLower(cfg.Output); output {
	case "stderr":
		writers = append(writers, os.Stderr)
	case "file", "both":
		if output == "both" {
			writers = append(writers, os.Stdout)
		}
		file, err := openLogFile(cfg)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	default:
		writers = append(writers, os.Stdout)
	}

	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func openLogFile(cfg config.LoggerConfig) (io.Writer, error) {
	path := cfg.FilePath
	if path == "" {
		path = defaultLogFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if cfg.EnableRotation {
		return &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSize,    // MB
			MaxAge:     cfg.MaxAge,     // days
			MaxBackups: cfg.MaxBackups, // files
			LocalTime:  true,
			Compress:   cfg.Compress,
		}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}
