package observability

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/interteks/loomtrack/internal/platform/logger"
)

const TracerName = "github.com/interteks/loomtrack"

type OtelConfig struct {
	Enabled     bool
	ServiceName string
	Environment string
	Version     string
	SampleRatio float64
	// Endpoint is the OTLP/HTTP collector; spans go to stdout when empty.
	Endpoint string
	Headers  map[string]string
	Insecure bool
}

// Tracing owns the tracer provider installed by InitOTel. A zero Tracing is
// valid and does nothing.
type Tracing struct {
	provider *sdktrace.TracerProvider
	exporter string
}

// Exporter names the span sink: "otlp", "stdout" or "" when disabled.
func (t *Tracing) Exporter() string {
	if t == nil {
		return ""
	}
	return t.exporter
}

func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// InitOTel installs a global tracer provider when cfg.Enabled. Exporter or
// resource failures are logged and tracing continues without them.
func InitOTel(ctx context.Context, log *logger.Logger, cfg OtelConfig) *Tracing {
	if !cfg.Enabled {
		return &Tracing{}
	}
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "loomtrack"
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(name),
		semconv.ServiceVersion(strings.TrimSpace(cfg.Version)),
		attribute.String("deployment.environment", strings.TrimSpace(cfg.Environment)),
	)

	t := &Tracing{}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clampRatio(cfg.SampleRatio)))),
	}
	exp, kind, err := newSpanExporter(ctx, cfg)
	switch {
	case err != nil:
		log.Warn("Span exporter unavailable, spans are dropped", "error", err)
	default:
		t.exporter = kind
		opts = append(opts, sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)))
	}

	t.provider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(t.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	log.Info("Tracing enabled", "service", name, "exporter", t.exporter, "sample_ratio", clampRatio(cfg.SampleRatio))
	return t
}

func newSpanExporter(ctx context.Context, cfg OtelConfig) (sdktrace.SpanExporter, string, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		return exp, "stdout", err
	}
	if strings.Contains(endpoint, "://") {
		return nil, "", errors.New("otel endpoint must be host:port without a scheme")
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	return exp, "otlp", err
}

// Tracer returns the engine tracer; it is a no-op until InitOTel runs.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

func clampRatio(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// ParseHeaders reads the OTEL_EXPORTER_OTLP_HEADERS form "k=v,k2=v2".
// Pairs missing either side are skipped.
func ParseHeaders(raw string) map[string]string {
	var headers map[string]string
	for _, part := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(part, "=")
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		if !ok || key == "" || val == "" {
			continue
		}
		if headers == nil {
			headers = map[string]string{}
		}
		headers[key] = val
	}
	return headers
}
