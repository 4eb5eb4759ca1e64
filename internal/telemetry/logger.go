package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	outputMu sync.RWMutex
	output   io.Writer = os.Stderr
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a logger tagged with the component name.
func NewLogger(component string) *Logger {
	outputMu.RLock()
	w := output
	outputMu.RUnlock()

	logger := zerolog.New(w).
		With().
		Timestamp().
		Str("component", component).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// Setup sets the global level and output format. Loggers created
// afterwards write to w; format is "console" or "json".
func Setup(level, format string, w io.Writer) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if w == nil {
		w = os.Stderr
	}

	switch format {
	case "", "json":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	zerolog.SetGlobalLevel(lvl)
	outputMu.Lock()
	output = w
	outputMu.Unlock()
	return nil
}

// LogSpanStart logs the start of a span with attributes
func (l *Logger) LogSpanStart(ctx context.Context, spanName string, attrs ...attribute.KeyValue) {
	event := l.WithContext(ctx).Debug().Str("span_name", spanName)
	for _, attr := range attrs {
		event = addAttributeToEvent(event, attr)
	}
	event.Msg("span started")
}

// LogSpanEnd logs the end of a span with results
func (l *Logger) LogSpanEnd(ctx context.Context, spanName string, err error) {
	logger := l.WithContext(ctx)

	if err != nil {
		logger.Error().
			Err(err).
			Str("span_name", spanName).
			Msg("span failed")
		return
	}
	logger.Debug().
		Str("span_name", spanName).
		Msg("span completed")
}

func addAttributeToEvent(event *zerolog.Event, attr attribute.KeyValue) *zerolog.Event {
	key := string(attr.Key)

	switch attr.Value.Type() {
	case attribute.STRING:
		return event.Str(key, attr.Value.AsString())
	case attribute.INT64:
		return event.Int64(key, attr.Value.AsInt64())
	case attribute.FLOAT64:
		return event.Float64(key, attr.Value.AsFloat64())
	case attribute.BOOL:
		return event.Bool(key, attr.Value.AsBool())
	default:
		return event.Str(key, attr.Value.Emit())
	}
}

// Convenience events shared by the reconciliation pipeline.

func (l *Logger) LogDroppedRecord(ctx context.Context, kind, eventID string, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("kind", kind).
		Str("event_id", eventID).
		Msg("dropping malformed audit record")
}

func (l *Logger) LogKindFailed(ctx context.Context, kind, category string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("kind", kind).
		Str("category", category).
		Msg("reconciliation failed for kind")
}

func (l *Logger) LogKindReconciled(ctx context.Context, kind string, audited, live, deleted int, durationMs float64) {
	l.WithContext(ctx).Info().
		Str("kind", kind).
		Int("audited", audited).
		Int("live", live).
		Int("deleted", deleted).
		Float64("duration_ms", durationMs).
		Msg("kind reconciled")
}
