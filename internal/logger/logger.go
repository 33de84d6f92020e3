// Package logger configures the process slog logger and carries request and
// mission identifiers on the context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	missionIDKey contextKey = "mission_id"
)

const redacted = "[REDACTED]"

// Attribute keys whose values are never written, whatever the call site passes.
// Matched case-insensitively against the last path element of grouped attributes.
var secretKeys = map[string]struct{}{
	"private_key":   {},
	"privatekey":    {},
	"raw_key":       {},
	"master_secret": {},
	"secret":        {},
	"plaintext":     {},
	"ciphertext":    {},
	"derived_key":   {},
	"vault_token":   {},
}

// Init installs the default logger writing to stdout.
// format is json or text; level is DEBUG, INFO, WARN or ERROR. Empty values mean json and INFO.
func Init(format, level string) error {
	l, err := New(os.Stdout, format, level)
	if err != nil {
		return err
	}
	slog.SetDefault(l)
	return nil
}

// New builds a logger with the secret-attribute filter applied
func New(w io.Writer, format, level string) (*slog.Logger, error) {
	if level == "" {
		level = "INFO"
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %s (must be DEBUG, INFO, WARN, or ERROR)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl, ReplaceAttr: redactSecrets}

	switch strings.ToLower(format) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT: %s (must be json or text)", format)
	}
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if _, ok := secretKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	return a
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request ID from ctx, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithMissionID scopes the context to a mission.
func WithMissionID(ctx context.Context, missionID string) context.Context {
	return context.WithValue(ctx, missionIDKey, missionID)
}

// FromContext returns the default logger with the context's request and mission IDs attached.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := GetRequestID(ctx); id != "" {
		l = l.With("request_id", id)
	}
	if id, _ := ctx.Value(missionIDKey).(string); id != "" {
		l = l.With("mission_id", id)
	}
	return l
}

func Info(ctx context.Context, msg string, args ...any)  { FromContext(ctx).Info(msg, args...) }
func Error(ctx context.Context, msg string, args ...any) { FromContext(ctx).Error(msg, args...) }
func Warn(ctx context.Context, msg string, args ...any)  { FromContext(ctx).Warn(msg, args...) }
func Debug(ctx context.Context, msg string, args ...any) { FromContext(ctx).Debug(msg, args...) }
