package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Key constants for structured log fields.
const (
	KeyComponent  = "component"
	KeyTarget     = "target"
	KeyAction     = "action"
	KeyLevel      = "releaseLevel"
	KeyDurationMs = "durationMs"
	KeyError      = "error"
)

type contextKey struct{}

// rootHandler forwards to whichever handler Init installed last, so loggers
// created at package init time follow later configuration. With and
// WithGroup calls are replayed onto the current handler in call order.
type rootHandler struct {
	current *atomic.Pointer[slog.Handler]
	ops     []handlerOp
}

// handlerOp is one WithGroup (group set) or WithAttrs call.
type handlerOp struct {
	group string
	attrs []slog.Attr
}

func (h *rootHandler) resolve() slog.Handler {
	handler := *h.current.Load()
	for _, op := range h.ops {
		if op.group != "" {
			handler = handler.WithGroup(op.group)
		} else {
			handler = handler.WithAttrs(op.attrs)
		}
	}
	return handler
}

func (h *rootHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.resolve().Enabled(ctx, level)
}

func (h *rootHandler) Handle(ctx context.Context, record slog.Record) error {
	return h.resolve().Handle(ctx, record)
}

func (h *rootHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(handlerOp{attrs: append([]slog.Attr{}, attrs...)})
}

func (h *rootHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(handlerOp{group: name})
}

func (h *rootHandler) with(op handlerOp) *rootHandler {
	ops := append(append([]handlerOp{}, h.ops...), op)
	return &rootHandler{current: h.current, ops: ops}
}

var (
	active        atomic.Pointer[slog.Handler]
	root          = &rootHandler{current: &active}
	defaultLogger = slog.New(root)
)

func init() {
	var h slog.Handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	active.Store(&h)
	slog.SetDefault(defaultLogger)
}

// Init installs the configured handler. Call once after config is loaded.
// format: "json" or "text" (default "text")
// level: "debug", "info", "warn", "error" (default "info")
// output: writer to log to (nil = os.Stdout)
func Init(format, level string, output io.Writer) {
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	active.Store(&handler)
	slog.SetDefault(defaultLogger)
}

// L returns a logger tagged with the given component name.
func L(component string) *slog.Logger {
	return defaultLogger.With(slog.String(KeyComponent, component))
}

// WithTarget returns a child logger carrying the operation target and action.
func WithTarget(logger *slog.Logger, target, action string) *slog.Logger {
	return logger.With(
		slog.String(KeyTarget, target),
		slog.String(KeyAction, action),
	)
}

// NewContext returns a new context carrying the given logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts the logger from context, falling back to the default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return l
	}
	return defaultLogger
}

// ParseLevel maps a level name to its slog level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
