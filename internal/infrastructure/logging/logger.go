package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/config"
)

// ServiceName is attached to every entry as "service".
const ServiceName = "dtu-ingest"

// redacted replaces the value of any attribute whose key names a secret.
const redacted = "[redacted]"

var secretKeys = []string{"password", "token", "secret"}

// Logger is the service's slog logger. Entries carry service and version,
// and attributes whose key names a credential are redacted.
type Logger struct {
	*slog.Logger
	file io.Closer
}

// New builds the logger described by the logging section of config.yaml.
// With logging.file.path set, entries are also written to a lumberjack
// rotated file, which Close releases.
func New(cfg config.LoggingConfig, version string) *Logger {
	out := io.Writer(os.Stdout)
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}

	var file *lumberjack.Logger
	if cfg.File.Path != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		}
		out = io.MultiWriter(out, file)
	}

	l := &Logger{Logger: slog.New(handler(out, cfg.Format, parseLevel(cfg.Level), version))}
	if file != nil {
		l.file = file
	}
	return l
}

func handler(w io.Writer, format string, level slog.Level, version string) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: redact}
	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return h.WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	})
}

func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}

// parseLevel accepts the slog level names plus "warning". Anything else
// is info.
func parseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Component returns a child logger tagged component=name. It shares the
// parent's outputs; closing it does nothing.
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name)}
}

// Close releases the rotated log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Default is the JSON info logger used until config.yaml has been read.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
