// Package observe provides application-wide observability primitives for
// Parley: OpenTelemetry metrics, tracing, and HTTP middleware tying them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Parley metrics.
const meterName = "github.com/parley-voice/parley"

// Metrics holds all OpenTelemetry metric instruments for the voice pipeline.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// STTDuration tracks time from audio submission to transcript arrival.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// AgentDuration tracks conversational agent round-trip latency.
	AgentDuration metric.Float64Histogram

	// Utterances counts finalized utterances leaving the aggregator. Use
	// with attribute.String("speaker_kind", "user"|"unknown").
	Utterances metric.Int64Counter

	// AgentReplies counts replies the agent produced and spoke.
	AgentReplies metric.Int64Counter

	// BargeIns counts accepted interruptions of agent playback.
	BargeIns metric.Int64Counter

	// Syntheses counts TTS requests by provider and status.
	Syntheses metric.Int64Counter

	// TTSFallbacks counts requests served by a non-primary TTS backend.
	TTSFallbacks metric.Int64Counter

	// ProviderErrors counts provider failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ActiveSpeakers tracks how many users are currently speaking.
	ActiveSpeakers metric.Int64UpDownCounter

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// conversational latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.STTDuration, err = m.Float64Histogram("parley.stt.duration",
		metric.WithDescription("Latency from audio submission to transcript arrival."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("parley.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AgentDuration, err = m.Float64Histogram("parley.agent.duration",
		metric.WithDescription("Round-trip latency of conversational agent calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Utterances, err = m.Int64Counter("parley.utterances",
		metric.WithDescription("Finalized utterances by speaker kind."),
	); err != nil {
		return nil, err
	}
	if met.AgentReplies, err = m.Int64Counter("parley.agent.replies",
		metric.WithDescription("Replies the agent produced and spoke."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("parley.barge_ins",
		metric.WithDescription("Accepted interruptions of agent playback."),
	); err != nil {
		return nil, err
	}
	if met.Syntheses, err = m.Int64Counter("parley.tts.syntheses",
		metric.WithDescription("TTS synthesis requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.TTSFallbacks, err = m.Int64Counter("parley.tts.fallbacks",
		metric.WithDescription("TTS requests served by a non-primary backend."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("parley.provider.errors",
		metric.WithDescription("Provider failures by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSpeakers, err = m.Int64UpDownCounter("parley.active_speakers",
		metric.WithDescription("Users currently speaking."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("parley.active_sessions",
		metric.WithDescription("Live voice sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("parley.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordUtterance records one finalized utterance.
func (m *Metrics) RecordUtterance(ctx context.Context, speakerKind string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("speaker_kind", speakerKind)),
	)
}

// RecordBargeIn records one accepted interruption.
func (m *Metrics) RecordBargeIn(ctx context.Context) {
	m.BargeIns.Add(ctx, 1)
}

// RecordSynthesis records one TTS request outcome for the given provider.
func (m *Metrics) RecordSynthesis(ctx context.Context, provider, status string) {
	m.Syntheses.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordTTSFallback records a request served by a non-primary TTS backend.
func (m *Metrics) RecordTTSFallback(ctx context.Context, provider string) {
	m.TTSFallbacks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordProviderError records one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
