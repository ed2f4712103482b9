// Package tracing emits structured start, end and error events for named
// spans (a whole run, one model call, one tool execution). Every event
// carries the request id stored in the context and, on completion, the
// elapsed duration. Events go to slog, optionally to OpenTelemetry, and
// to any registered [Sink].
//
// Tracing never swallows failures: [Run] and [Call] hand the wrapped
// function's error back unchanged after logging it.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type requestIDKey struct{}

// NewRequestID returns a fresh 12-character lowercase hex identifier.
func NewRequestID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}

// WithRequestID returns a context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Event kinds.
const (
	KindStart = "start"
	KindEnd   = "end"
	KindError = "error"
)

// Event is one span lifecycle record as delivered to a [Sink].
type Event struct {
	Name      string         `json:"event"` // "<span>.<kind>"
	Span      string         `json:"span"`
	Kind      string         `json:"kind"`
	RequestID string         `json:"request_id,omitempty"`
	Time      time.Time      `json:"time"`
	Duration  float64        `json:"duration_s,omitempty"`
	Error     string         `json:"error,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Sink receives span events in addition to the log. Emit must not
// block for long; slow sinks should buffer.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// Tracer creates spans. A nil *Tracer is valid and records nothing.
type Tracer struct {
	logger *slog.Logger
	otel   trace.Tracer
	sinks  []Sink
	now    func() time.Time
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithTracerProvider mirrors every span into OpenTelemetry.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(t *Tracer) {
		if tp != nil {
			t.otel = tp.Tracer("github.com/huraaa/Agent-one")
		}
	}
}

// WithSink registers an additional event destination.
func WithSink(s Sink) Option {
	return func(t *Tracer) {
		if s != nil {
			t.sinks = append(t.sinks, s)
		}
	}
}

// New creates a Tracer logging to logger (slog.Default when nil).
func New(logger *slog.Logger, opts ...Option) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracer{logger: logger, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Span is an in-flight named operation. End it exactly once; later
// calls are ignored.
type Span struct {
	t       *Tracer
	ctx     context.Context
	name    string
	attrs   []any
	start   time.Time
	otel    trace.Span
	endOnce sync.Once
}

// Start begins a span and emits "<name>.start". attrs are slog-style
// key/value pairs attached to every event of the span.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...any) (context.Context, *Span) {
	if t == nil {
		return ctx, nil
	}
	s := &Span{t: t, name: name, attrs: attrs, start: t.now()}
	if t.otel != nil {
		kvs := otelAttrs(attrs)
		if id := RequestID(ctx); id != "" {
			kvs = append(kvs, attribute.String("request_id", id))
		}
		ctx, s.otel = t.otel.Start(ctx, name, trace.WithAttributes(kvs...))
	}
	s.ctx = ctx
	t.emit(ctx, s, KindStart, 0, nil)
	return ctx, s
}

// End finishes the span, emitting "<name>.end" with the duration, or
// "<name>.error" with the error text when err is non-nil.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	s.endOnce.Do(func() {
		d := s.t.now().Sub(s.start)
		if s.otel != nil {
			if err != nil {
				s.otel.RecordError(err)
				s.otel.SetStatus(codes.Error, err.Error())
			}
			s.otel.End()
		}
		if err != nil {
			s.t.emit(s.ctx, s, KindError, d, err)
			return
		}
		s.t.emit(s.ctx, s, KindEnd, d, nil)
	})
}

func (t *Tracer) emit(ctx context.Context, s *Span, kind string, d time.Duration, err error) {
	event := s.name + "." + kind
	reqID := RequestID(ctx)

	args := make([]any, 0, len(s.attrs)+6)
	args = append(args, "request_id", reqID)
	args = append(args, s.attrs...)

	level := slog.LevelInfo
	switch kind {
	case KindStart:
		level = slog.LevelDebug
	case KindEnd:
		args = append(args, "duration_s", roundSeconds(d))
	case KindError:
		level = slog.LevelError
		args = append(args, "duration_s", roundSeconds(d), "error", err.Error())
	}
	t.logger.Log(ctx, level, event, args...)

	if len(t.sinks) == 0 {
		return
	}
	ev := Event{
		Name:      event,
		Span:      s.name,
		Kind:      kind,
		RequestID: reqID,
		Time:      t.now().UTC(),
		Attrs:     attrMap(s.attrs),
	}
	if kind != KindStart {
		ev.Duration = roundSeconds(d)
	}
	if err != nil {
		ev.Error = err.Error()
	}
	for _, sink := range t.sinks {
		sink.Emit(ctx, ev)
	}
}

// Event logs a point-in-time event (for example "cache.hit") with the
// request id from ctx.
func (t *Tracer) Event(ctx context.Context, name string, attrs ...any) {
	if t == nil {
		return
	}
	args := append([]any{"request_id", RequestID(ctx)}, attrs...)
	t.logger.InfoContext(ctx, name, args...)
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(otelAttrs(attrs)...))
	}
	if len(t.sinks) == 0 {
		return
	}
	ev := Event{
		Name:      name,
		Kind:      "event",
		RequestID: RequestID(ctx),
		Time:      t.now().UTC(),
		Attrs:     attrMap(attrs),
	}
	for _, sink := range t.sinks {
		sink.Emit(ctx, ev)
	}
}

// Run executes fn inside a span named name and returns fn's error
// unchanged.
func Run(ctx context.Context, t *Tracer, name string, fn func(ctx context.Context) error, attrs ...any) error {
	ctx, span := t.Start(ctx, name, attrs...)
	err := fn(ctx)
	span.End(err)
	return err
}

// Call is [Run] for functions that return a value.
func Call[T any](ctx context.Context, t *Tracer, name string, fn func(ctx context.Context) (T, error), attrs ...any) (T, error) {
	ctx, span := t.Start(ctx, name, attrs...)
	v, err := fn(ctx)
	span.End(err)
	return v, err
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(time.Millisecond)) / float64(time.Second)
}

func attrMap(kv []any) map[string]any {
	if len(kv) == 0 {
		return nil
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		m[k] = kv[i+1]
	}
	return m
}

func otelAttrs(kv []any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case string:
			out = append(out, attribute.String(k, v))
		case int:
			out = append(out, attribute.Int(k, v))
		case int64:
			out = append(out, attribute.Int64(k, v))
		case float64:
			out = append(out, attribute.Float64(k, v))
		case bool:
			out = append(out, attribute.Bool(k, v))
		default:
			out = append(out, attribute.String(k, fmt.Sprint(v)))
		}
	}
	return out
}
