// Package wfobserve wires OpenTelemetry tracing and metrics around the
// scheduler's wave dispatch, the action cache's lookups, and the hasher's
// fingerprint computation. It configures the global TracerProvider and
// MeterProvider; every other package only ever touches the narrow
// Instruments struct handed back by Init, never the OTel SDK directly.
package wfobserve

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "weaveforge"

// Instruments is the narrow set of counters/histograms the scheduler,
// cache, and hasher record against. Zero-value Instruments is safe to use:
// every method degrades to a no-op when the underlying instrument is nil,
// so a component never needs to branch on whether observability is wired.
type Instruments struct {
	Tracer               trace.Tracer
	ActionsExecuted      metric.Int64Counter
	ActionsCached        metric.Int64Counter
	ActionsFailed        metric.Int64Counter
	CacheLookups         metric.Int64Counter
	CacheHits            metric.Int64Counter
	WaveDuration         metric.Float64Histogram
	FingerprintsComputed metric.Int64Counter
}

// Shutdown flushes and tears down the configured providers.
type Shutdown func(context.Context) error

// Init configures global tracer and meter providers exporting to endpoint
// over OTLP/gRPC (plaintext, matching the pack's own otelinit helper) and
// returns the Instruments every component records against plus a Shutdown
// to call once the run completes. If endpoint is empty, Init returns
// Instruments holding only a no-op Tracer (every metric nil) and a no-op
// Shutdown rather than erroring: a
// misconfigured or absent collector must never be the reason a build fails.
func Init(ctx context.Context, serviceName, endpoint string) (Instruments, Shutdown, error) {
	noop := func(context.Context) error { return nil }
	if endpoint == "" {
		return Instruments{Tracer: trace.NewNoopTracerProvider().Tracer(instrumentationName)}, noop, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return Instruments{}, noop, fmt.Errorf("build otel resource: %w", err)
	}

	traceExp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return Instruments{}, noop, fmt.Errorf("init trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(endpoint), otlpmetricgrpc.WithInsecure())
	if err != nil {
		_ = tp.Shutdown(ctx)
		return Instruments{}, noop, fmt.Errorf("init metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(10*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	meter := mp.Meter(instrumentationName)
	instr, err := buildInstruments(meter, tp.Tracer(instrumentationName))
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return Instruments{}, noop, err
	}

	shutdown := func(sctx context.Context) error {
		err1 := tp.Shutdown(sctx)
		err2 := mp.Shutdown(sctx)
		if err1 != nil {
			return err1
		}
		return err2
	}
	return instr, shutdown, nil
}

func buildInstruments(meter metric.Meter, tracer trace.Tracer) (Instruments, error) {
	actionsExecuted, err := meter.Int64Counter("weaveforge_actions_executed_total")
	if err != nil {
		return Instruments{}, err
	}
	actionsCached, err := meter.Int64Counter("weaveforge_actions_cached_total")
	if err != nil {
		return Instruments{}, err
	}
	actionsFailed, err := meter.Int64Counter("weaveforge_actions_failed_total")
	if err != nil {
		return Instruments{}, err
	}
	cacheLookups, err := meter.Int64Counter("weaveforge_cache_lookups_total")
	if err != nil {
		return Instruments{}, err
	}
	cacheHits, err := meter.Int64Counter("weaveforge_cache_hits_total")
	if err != nil {
		return Instruments{}, err
	}
	waveDuration, err := meter.Float64Histogram("weaveforge_wave_duration_seconds")
	if err != nil {
		return Instruments{}, err
	}
	fingerprints, err := meter.Int64Counter("weaveforge_fingerprints_computed_total")
	if err != nil {
		return Instruments{}, err
	}
	return Instruments{
		Tracer:               tracer,
		ActionsExecuted:      actionsExecuted,
		ActionsCached:        actionsCached,
		ActionsFailed:        actionsFailed,
		CacheLookups:         cacheLookups,
		CacheHits:            cacheHits,
		WaveDuration:         waveDuration,
		FingerprintsComputed: fingerprints,
	}, nil
}

// StartWave opens a span for dispatching one wave of targets and returns an
// end function that records WaveDuration. Safe to call on a zero-value
// Instruments.
func (in Instruments) StartWave(ctx context.Context, waveIndex, targetCount int) (context.Context, func()) {
	start := time.Now()
	if in.Tracer == nil {
		return ctx, func() {}
	}
	ctx, span := in.Tracer.Start(ctx, "wave.dispatch")
	span.SetAttributes(
		attribute.Int("weaveforge.wave_index", waveIndex),
		attribute.Int("weaveforge.target_count", targetCount),
	)
	return ctx, func() {
		if in.WaveDuration != nil {
			in.WaveDuration.Record(ctx, time.Since(start).Seconds())
		}
		span.End()
	}
}

// RecordCacheLookup increments CacheLookups and, on a hit, CacheHits.
func (in Instruments) RecordCacheLookup(ctx context.Context, hit bool) {
	if in.CacheLookups != nil {
		in.CacheLookups.Add(ctx, 1)
	}
	if hit && in.CacheHits != nil {
		in.CacheHits.Add(ctx, 1)
	}
}

// RecordActionTerminal increments the counter matching status ("executed",
// "cached", or "failed").
func (in Instruments) RecordActionTerminal(ctx context.Context, status string) {
	switch status {
	case "executed":
		if in.ActionsExecuted != nil {
			in.ActionsExecuted.Add(ctx, 1)
		}
	case "cached":
		if in.ActionsCached != nil {
			in.ActionsCached.Add(ctx, 1)
		}
	case "failed":
		if in.ActionsFailed != nil {
			in.ActionsFailed.Add(ctx, 1)
		}
	}
}

// RecordFingerprint increments FingerprintsComputed.
func (in Instruments) RecordFingerprint(ctx context.Context) {
	if in.FingerprintsComputed != nil {
		in.FingerprintsComputed.Add(ctx, 1)
	}
}
