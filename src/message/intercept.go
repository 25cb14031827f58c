package message

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/sanitizer"
	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/value"
)

const meterName = "github.com/Easy-Infra-Ltd/easy-safe-mode/src/message"

// Field names a payload field the interceptor may sanitize.
type Field string

const (
	FieldContent  Field = "content"
	FieldMetadata Field = "metadata"
)

// ParseField validates a field name.
func ParseField(s string) (Field, error) {
	switch f := Field(s); f {
	case FieldContent, FieldMetadata:
		return f, nil
	default:
		return "", fmt.Errorf("unknown field %q (want %q or %q)", s, FieldContent, FieldMetadata)
	}
}

// Options configure Intercept. The zero value is disabled.
type Options struct {
	Enabled bool
	// Limits applied to every designated field. The zero value means
	// sanitizer.DefaultLimits.
	Limits sanitizer.Limits
	// Fields to sanitize. Nil means content only.
	Fields []Field
	// Logger receives a debug record per rewritten field. Optional.
	Logger *slog.Logger
	// MeterProvider overrides the global OpenTelemetry provider. Optional.
	MeterProvider metric.MeterProvider
}

// Intercept wraps next so that designated fields are sanitized before the
// message is built. When opts.Enabled is false next is returned as is.
// Errors from next are returned unchanged.
func Intercept(next Constructor, opts Options) Constructor {
	if !opts.Enabled {
		return next
	}

	s := opts.Sanitizer()
	content, metadata := opts.Covers(FieldContent), opts.Covers(FieldMetadata)

	m := newMetrics(opts.MeterProvider)

	return func(p Params) (*Msg, error) {
		if content {
			p.Content = sanitizeField(s, p, FieldContent, p.Content, opts.Logger, m)
		}
		if metadata {
			p.Metadata = sanitizeField(s, p, FieldMetadata, p.Metadata, opts.Logger, m)
		}
		m.messages.Add(context.Background(), 1)
		return next(p)
	}
}

// Covers reports whether Intercept sanitizes field f under opts.
func (opts Options) Covers(f Field) bool {
	if !opts.Enabled {
		return false
	}
	if opts.Fields == nil {
		return f == FieldContent
	}
	return slices.Contains(opts.Fields, f)
}

// Sanitizer returns the sanitizer Intercept applies for opts.
func (opts Options) Sanitizer() *sanitizer.Sanitizer {
	return sanitizer.New(effectiveLimits(opts.Limits))
}

func sanitizeField(s *sanitizer.Sanitizer, p Params, field Field, v value.Value, logger *slog.Logger, m metrics) value.Value {
	res := s.Process(v)
	if res.Verdict == sanitizer.VerdictPass {
		return res.Value
	}

	for rule, n := range res.Counts() {
		m.rewritten.Add(context.Background(), int64(n),
			metric.WithAttributes(attribute.String("rule", string(rule)), attribute.String("field", string(field))))
	}
	if logger != nil {
		logger.Debug("sanitized message field",
			"name", p.Name,
			"field", string(field),
			"rewrites", len(res.Findings),
		)
	}
	return res.Value
}

func effectiveLimits(l sanitizer.Limits) sanitizer.Limits {
	if l == (sanitizer.Limits{}) {
		return sanitizer.DefaultLimits()
	}
	return l
}

type metrics struct {
	messages  metric.Int64Counter
	rewritten metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	m := metrics{messages: noop.Int64Counter{}, rewritten: noop.Int64Counter{}}
	if c, err := meter.Int64Counter("safemode.messages.sanitized",
		metric.WithDescription("Messages passed through the safe mode interceptor")); err == nil {
		m.messages = c
	}
	if c, err := meter.Int64Counter("safemode.nodes.rewritten",
		metric.WithDescription("Value nodes rewritten by the sanitizer")); err == nil {
		m.rewritten = c
	}
	return m
}

// Announce logs the activation line when opts.Enabled is set and reports
// whether it did.
func Announce(logger *slog.Logger, opts Options, collaborator string) bool {
	if !opts.Enabled {
		return false
	}
	limits := sanitizer.New(effectiveLimits(opts.Limits)).Limits()
	logger.Info(fmt.Sprintf("[safe_mode] ENABLED: sanitizing all %s data", collaborator),
		"maxStringLength", limits.MaxStringLength,
		"maxInteger", limits.MaxInteger,
		"maxDepth", limits.MaxDepth,
	)
	return true
}
