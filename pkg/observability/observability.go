// Package observability provides OpenTelemetry metrics for the wallet
// lifecycle. Export is disabled unless an OTLP endpoint is configured; with
// export disabled every recording call is a no-op.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config configures the metric provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // e.g. "localhost:4317"
	ExportInterval time.Duration
	Insecure       bool
}

// DefaultConfig returns defaults with export disabled.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "shieldwallet-coordinator",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		ExportInterval: 15 * time.Second,
	}
}

// Provider owns the meter provider and the lifecycle counters.
type Provider struct {
	config        *Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	logger        *slog.Logger

	proposals  metric.Int64Counter
	approvals  metric.Int64Counter
	executions metric.Int64Counter
	rejections metric.Int64Counter
}

// New creates a metrics provider. An empty OTLP endpoint leaves export
// disabled and every recorder inert.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if config.OTLPEndpoint == "" {
		p.logger.InfoContext(ctx, "metric export disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(config.ExportInterval),
		)),
	)
	otel.SetMeterProvider(p.meterProvider)

	p.meter = otel.Meter("shieldwallet",
		metric.WithInstrumentationVersion(config.ServiceVersion),
	)
	if err := p.initCounters(); err != nil {
		return nil, fmt.Errorf("failed to init counters: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"environment", config.Environment,
		"endpoint", config.OTLPEndpoint,
	)
	return p, nil
}

func (p *Provider) initCounters() error {
	var err error

	p.proposals, err = p.meter.Int64Counter("shieldwallet.proposals.total",
		metric.WithDescription("Total execution requests proposed"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	p.approvals, err = p.meter.Int64Counter("shieldwallet.approvals.total",
		metric.WithDescription("Total owner approvals recorded"),
		metric.WithUnit("{approval}"),
	)
	if err != nil {
		return err
	}

	p.executions, err = p.meter.Int64Counter("shieldwallet.executions.total",
		metric.WithDescription("Total requests executed"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	p.rejections, err = p.meter.Int64Counter("shieldwallet.rejections.total",
		metric.WithDescription("Total rejected lifecycle operations"),
		metric.WithUnit("{rejection}"),
	)
	return err
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider != nil {
		return p.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordProposal counts one proposed execution request.
func (p *Provider) RecordProposal(ctx context.Context, attrs ...attribute.KeyValue) {
	if p.proposals != nil {
		p.proposals.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordApproval counts one stored owner approval.
func (p *Provider) RecordApproval(ctx context.Context, attrs ...attribute.KeyValue) {
	if p.approvals != nil {
		p.approvals.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordExecution counts one executed request.
func (p *Provider) RecordExecution(ctx context.Context, attrs ...attribute.KeyValue) {
	if p.executions != nil {
		p.executions.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordRejection counts one rejected operation with its reason.
func (p *Provider) RecordRejection(ctx context.Context, reason string, attrs ...attribute.KeyValue) {
	if p.rejections != nil {
		all := append(attrs, attribute.String("reason", reason))
		p.rejections.Add(ctx, 1, metric.WithAttributes(all...))
	}
}
