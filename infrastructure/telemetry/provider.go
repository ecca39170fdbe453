// Package telemetry wires OpenTelemetry tracing and metrics for scan runs.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/felixgeelhaar/recon-go/domain/config"
)

// InstrumentationName scopes every tracer and meter this package creates.
const InstrumentationName = "github.com/felixgeelhaar/recon-go"

// ErrUnknownExporter is returned for exporter names not handled here.
var ErrUnknownExporter = errors.New("unknown telemetry exporter")

// Provider owns the SDK providers and the recon instruments.
type Provider struct {
	tracer         trace.Tracer
	metrics        *Metrics
	metricsHandler http.Handler
	shutdownFuncs  []func(context.Context) error
}

type options struct {
	version     string
	traceWriter io.Writer
	reader      sdkmetric.Reader
	global      bool
}

// Option configures New.
type Option func(*options)

// WithVersion sets the service.version resource attribute.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithTraceWriter redirects the stdout span exporter.
func WithTraceWriter(w io.Writer) Option {
	return func(o *options) { o.traceWriter = w }
}

// WithMetricReader replaces the configured metrics exporter with reader.
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.reader = r }
}

// WithGlobal installs the providers as the otel globals.
func WithGlobal() Option {
	return func(o *options) { o.global = true }
}

// New builds tracing and metrics from cfg. Disabled halves fall back to
// no-op implementations.
func New(ctx context.Context, cfg config.TelemetryConfig, opts ...Option) (*Provider, error) {
	o := options{version: "dev", traceWriter: io.Discard}
	for _, opt := range opts {
		opt(&o)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "recon"
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(o.version),
	)

	p := &Provider{}

	tp, err := newTracerProvider(ctx, cfg.Tracing, res, o.traceWriter)
	if err != nil {
		return nil, err
	}
	if tp != nil {
		p.tracer = tp.Tracer(InstrumentationName)
		p.shutdownFuncs = append(p.shutdownFuncs, tp.Shutdown)
		if o.global {
			otel.SetTracerProvider(tp)
			otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			))
		}
	} else {
		p.tracer = tracenoop.NewTracerProvider().Tracer(InstrumentationName)
	}

	var meter metric.Meter
	mp, handler, err := newMeterProvider(cfg.Metrics, res, o.reader)
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	if mp != nil {
		meter = mp.Meter(InstrumentationName)
		p.metricsHandler = handler
		p.shutdownFuncs = append(p.shutdownFuncs, mp.Shutdown)
		if o.global {
			otel.SetMeterProvider(mp)
		}
	} else {
		meter = metricnoop.NewMeterProvider().Meter(InstrumentationName)
	}

	p.metrics, err = NewMetrics(meter)
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	return p, nil
}

// NewNoop returns a provider that records nothing.
func NewNoop() *Provider {
	m, _ := NewMetrics(metricnoop.NewMeterProvider().Meter(InstrumentationName))
	return &Provider{
		tracer:  tracenoop.NewTracerProvider().Tracer(InstrumentationName),
		metrics: m,
	}
}

func newTracerProvider(ctx context.Context, cfg config.TracingConfig, res *resource.Resource, w io.Writer) (*sdktrace.TracerProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "", "none":
		return nil, nil

	case "otlp":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		exporter = exp

	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		exporter = exp

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	), nil
}

func newMeterProvider(cfg config.MetricsConfig, res *resource.Resource, reader sdkmetric.Reader) (*sdkmetric.MeterProvider, http.Handler, error) {
	if reader != nil {
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)), nil, nil
	}
	if !cfg.Enabled {
		return nil, nil, nil
	}

	switch cfg.Exporter {
	case "", "none":
		return nil, nil, nil

	case "prometheus":
		registry := prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exporter))
		return mp, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
}

// Tracer returns the run tracer.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Metrics returns the recon instruments.
func (p *Provider) Metrics() *Metrics { return p.metrics }

// MetricsHandler serves the Prometheus scrape endpoint, or nil when the
// prometheus exporter is not in use.
func (p *Provider) MetricsHandler() http.Handler { return p.metricsHandler }

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdownFuncs {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
