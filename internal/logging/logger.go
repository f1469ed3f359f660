package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Level int

const (
	LevelDebug Level = iota - 4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// ParseLevel maps a LOG_LEVEL value onto a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger
}

type Config struct {
	Level     Level
	Format    string // "json", "text", "dev"
	Output    io.Writer
	AddSource bool

	// File, when set, receives a copy of every record with size-based rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

type logger struct {
	slog   *slog.Logger
	config *Config
}

// Patterns for credentials that may leak into messages: Jellyfin tokens travel
// both as `api_key=` query parameters and in `MediaBrowser Token="..."` headers.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|pw)["\s]*[:=]["\s]*([^\s"&,]+)"?`),
	regexp.MustCompile(`(?i)authorization:\s*bearer\s+([^\s]+)`),
	regexp.MustCompile(`(?i)x-emby-token:\s*([^\s"&]+)`),
}

// NewLogger creates a new structured logger with the given configuration
func NewLogger(config *Config) Logger {
	if config == nil {
		config = &Config{
			Level:  LevelInfo,
			Format: "text",
		}
	}

	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	if config.File != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    orDefault(config.MaxSizeMB, 10),
			MaxBackups: orDefault(config.MaxBackups, 3),
			Compress:   true,
		})
	}

	opts := &slog.HandlerOptions{
		Level:     slog.Level(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	switch config.Format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	case "dev":
		handler = NewDevHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	return &logger{
		slog:   slog.New(handler),
		config: config,
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *logger) Debug(msg string, args ...any) {
	l.slog.Debug(Sanitize(msg), sanitizeArgs(args)...)
}

func (l *logger) Info(msg string, args ...any) {
	l.slog.Info(Sanitize(msg), sanitizeArgs(args)...)
}

func (l *logger) Warn(msg string, args ...any) {
	l.slog.Warn(Sanitize(msg), sanitizeArgs(args)...)
}

func (l *logger) Error(msg string, args ...any) {
	l.slog.Error(Sanitize(msg), sanitizeArgs(args)...)
}

func (l *logger) With(args ...any) Logger {
	return &logger{
		slog:   l.slog.With(sanitizeArgs(args)...),
		config: l.config,
	}
}

func (l *logger) WithContext(ctx context.Context) Logger {
	return &logger{
		slog:   l.slog.With(extractContextFields(ctx)...),
		config: l.config,
	}
}

// Sanitize removes credentials from a log line.
func Sanitize(msg string) string {
	for _, pattern := range sensitivePatterns {
		msg = pattern.ReplaceAllStringFunc(msg, func(match string) string {
			if i := strings.IndexAny(match, ":="); i >= 0 {
				sep := match[i : i+1]
				if sep == ":" {
					sep = ": "
				}
				return match[:i] + sep + "[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return msg
}

func sanitizeArgs(args []any) []any {
	sanitized := make([]any, len(args))
	for i, arg := range args {
		if str, ok := arg.(string); ok {
			sanitized[i] = Sanitize(str)
		} else {
			sanitized[i] = arg
		}
	}
	return sanitized
}

type ctxKey string

const (
	RequestIDKey ctxKey = "request_id"
	UserIDKey    ctxKey = "user_id"
)

func extractContextFields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	var fields []any
	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		fields = append(fields, "request_id", requestID)
	}
	if userID := ctx.Value(UserIDKey); userID != nil {
		fields = append(fields, "user_id", userID)
	}
	return fields
}

// DevHandler prints compact coloured lines for local development.
type DevHandler struct {
	opts   *slog.HandlerOptions
	output io.Writer
	attrs  []slog.Attr
}

func NewDevHandler(output io.Writer, opts *slog.HandlerOptions) *DevHandler {
	return &DevHandler{
		opts:   opts,
		output: output,
	}
}

func (h *DevHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts != nil && h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *DevHandler) Handle(_ context.Context, record slog.Record) error {
	var levelColor string
	switch record.Level {
	case slog.LevelDebug:
		levelColor = "\033[36m"
	case slog.LevelInfo:
		levelColor = "\033[32m"
	case slog.LevelWarn:
		levelColor = "\033[33m"
	case slog.LevelError:
		levelColor = "\033[31m"
	default:
		levelColor = "\033[0m"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s %s]\033[0m %s",
		levelColor, record.Time.Format("15:04:05"), strings.ToUpper(record.Level.String()), record.Message)

	for _, attr := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", attr.Key, attr.Value)
	}
	record.Attrs(func(attr slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", attr.Key, attr.Value)
		return true
	})
	b.WriteByte('\n')

	_, err := io.WriteString(h.output, b.String())
	return err
}

func (h *DevHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &DevHandler{opts: h.opts, output: h.output, attrs: merged}
}

// WithGroup is a no-op; dev output is flat.
func (h *DevHandler) WithGroup(string) slog.Handler {
	return h
}

var defaultLogger Logger

// SetDefault sets the default global logger
func SetDefault(l Logger) {
	defaultLogger = l
}

// Default returns the default global logger
func Default() Logger {
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() Logger {
	return NewLogger(&Config{Level: LevelError + 4, Output: io.Discard})
}

// FiberMiddleware logs one line per request and stores a request id in Locals.
func FiberMiddleware(logger Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		requestID := uuid.NewString()
		c.Locals(string(RequestIDKey), requestID)
		c.Set("X-Request-Id", requestID)

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()

		logArgs := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration_ms", duration.Milliseconds(),
			"request_id", requestID,
			"ip", c.IP(),
		}
		msg := fmt.Sprintf("%s %s - %d", c.Method(), c.Path(), status)

		switch {
		case status >= 500:
			logger.Error(msg, logArgs...)
		case status >= 400:
			logger.Warn(msg, logArgs...)
		default:
			logger.Info(msg, logArgs...)
		}

		return err
	}
}
