package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "console-gateway"

type AppMetrics struct {
	sessionTransitionCounter metric.Int64Counter
	refreshCounter           metric.Int64Counter
	guardDecisionCounter     metric.Int64Counter
	upstreamRequestCounter   metric.Int64Counter
	monitorTransitionCounter metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

type MetricsConfig struct {
	Enabled        bool
	Endpoint       string
	Insecure       bool
	ServiceName    string
	Environment    string
	ExportInterval int // seconds
}

func InitMetrics(ctx context.Context, cfg MetricsConfig, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.Enabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter(meterName)
	m := &AppMetrics{}
	if m.sessionTransitionCounter, err = meter.Int64Counter("session.transitions"); err != nil {
		return nil, err
	}
	if m.refreshCounter, err = meter.Int64Counter("session.refresh.attempts"); err != nil {
		return nil, err
	}
	if m.guardDecisionCounter, err = meter.Int64Counter("guard.decisions"); err != nil {
		return nil, err
	}
	if m.upstreamRequestCounter, err = meter.Int64Counter("upstream.requests"); err != nil {
		return nil, err
	}
	if m.monitorTransitionCounter, err = meter.Int64Counter("monitor.transitions"); err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()
	return mp, nil
}

func RecordSessionTransition(ctx context.Context, transition string) {
	record(ctx, func(m *AppMetrics) (metric.Int64Counter, []attribute.KeyValue) {
		return m.sessionTransitionCounter, []attribute.KeyValue{attribute.String("transition", transition)}
	})
}

func RecordRefreshAttempt(ctx context.Context, outcome string) {
	record(ctx, func(m *AppMetrics) (metric.Int64Counter, []attribute.KeyValue) {
		return m.refreshCounter, []attribute.KeyValue{attribute.String("outcome", outcome)}
	})
}

func RecordGuardDecision(ctx context.Context, action string) {
	record(ctx, func(m *AppMetrics) (metric.Int64Counter, []attribute.KeyValue) {
		return m.guardDecisionCounter, []attribute.KeyValue{attribute.String("action", action)}
	})
}

func RecordUpstreamRequest(ctx context.Context, path, outcome string) {
	record(ctx, func(m *AppMetrics) (metric.Int64Counter, []attribute.KeyValue) {
		return m.upstreamRequestCounter, []attribute.KeyValue{
			attribute.String("path", path),
			attribute.String("outcome", outcome),
		}
	})
}

func RecordMonitorTransition(ctx context.Context, from, to string) {
	record(ctx, func(m *AppMetrics) (metric.Int64Counter, []attribute.KeyValue) {
		return m.monitorTransitionCounter, []attribute.KeyValue{
			attribute.String("from", from),
			attribute.String("to", to),
		}
	})
}

func record(ctx context.Context, pick func(*AppMetrics) (metric.Int64Counter, []attribute.KeyValue)) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	counter, attrs := pick(m)
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}
