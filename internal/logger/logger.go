// Package logger configures log/slog for the ops portal from LoggingConfig.
// Output may be JSON or text, filtered by level, and written to stdout,
// stderr or an append-only file. Every record carries the service identity.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"opsportal/internal/models"
	"opsportal/internal/version"
)

// Identity is attached to every record so logs from several deployments of
// the portal can be told apart.
type Identity struct {
	Service     string
	App         string
	Environment string
	Build       version.Info
}

// Setup creates and configures a structured logger based on the provided LoggingConfig.
// It returns the configured logger, an io.Closer for file handles (nil for
// stdout/stderr), and any error encountered during setup.
//
// The caller is responsible for closing the returned Closer when done (if non-nil).
func Setup(cfg models.LoggingConfig, id Identity) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	writer, closer, err := openWriter(cfg.Output, cfg.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log output: %w", err)
	}

	return New(writer, cfg.Format, level, id), closer, nil
}

// New builds a logger writing to w. Any format other than "text" is JSON.
func New(w io.Writer, format string, level slog.Leveler, id Identity) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(id.attrs()...)
}

func (id Identity) attrs() []any {
	attrs := make([]any, 0, 6)
	if id.Service != "" {
		attrs = append(attrs, slog.String("service", id.Service))
	}
	if id.App != "" {
		attrs = append(attrs, slog.String("app", id.App))
	}
	if id.Environment != "" {
		attrs = append(attrs, slog.String("environment", id.Environment))
	}
	if id.Build.Version != "" {
		attrs = append(attrs, slog.String("version", id.Build.Version))
	}
	if id.Build.GitCommit != "" {
		attrs = append(attrs, slog.String("git_commit", id.Build.GitCommit))
	}
	if id.Build.InstanceID != "" {
		attrs = append(attrs, slog.String("instance_id", id.Build.InstanceID))
	}
	return attrs
}

// parseLevel converts a level string to an slog.Level.
// Supported values: debug, info, warn, error (case-insensitive).
func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level: %s", level)
	}
}

// openWriter returns the writer for output. Only file output has a closer.
func openWriter(output, filePath string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		if filePath == "" {
			return nil, nil, fmt.Errorf("file path is required when output is file")
		}
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
		}
		return f, f, nil
	default:
		return os.Stdout, nil, nil
	}
}
