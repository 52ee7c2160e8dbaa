// Package telemetry bootstraps OpenTelemetry metrics for an RTPS
// participant and exposes the counters its protocol engines increment.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// InitMeterProvider bootstraps the OpenTelemetry MeterProvider with an
// OTLP/gRPC metric exporter targeting the given endpoint (e.g. "otel-collector:4317").
// Metrics are flushed periodically via a PeriodicReader.
// The caller must defer mp.Shutdown(ctx) to flush pending metrics.
func InitMeterProvider(ctx context.Context, participantName string, endpoint string) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(participantName),
		)),
	)

	otel.SetMeterProvider(mp)
	return mp, nil
}

// ParticipantMetrics holds the counters an RTPS participant's protocol
// engines and discovery subsystem increment. Every field is safe to call
// concurrently (the underlying otel instruments are).
type ParticipantMetrics struct {
	HeartbeatsSent        metric.Int64Counter
	AckNacksReceived      metric.Int64Counter
	SamplesDelivered      metric.Int64Counter
	RetransmitsSent       metric.Int64Counter
	ParticipantsDiscovered metric.Int64Counter
	ParticipantsLost      metric.Int64Counter
	ProxiesMatched        metric.Int64Counter
	IncompatibleQos       metric.Int64Counter
}

// NewParticipantMetrics creates the counters from the given meter. When mp
// is nil (no OTLP endpoint configured), a no-op meter is used so callers
// never need a nil check before incrementing.
func NewParticipantMetrics(mp *sdkmetric.MeterProvider) (*ParticipantMetrics, error) {
	var meter metric.Meter
	if mp == nil {
		meter = otel.GetMeterProvider().Meter("rtps.participant")
	} else {
		meter = mp.Meter("rtps.participant")
	}

	pm := &ParticipantMetrics{}
	var err error
	if pm.HeartbeatsSent, err = meter.Int64Counter("rtps.heartbeats_sent"); err != nil {
		return nil, err
	}
	if pm.AckNacksReceived, err = meter.Int64Counter("rtps.acknacks_received"); err != nil {
		return nil, err
	}
	if pm.SamplesDelivered, err = meter.Int64Counter("rtps.samples_delivered"); err != nil {
		return nil, err
	}
	if pm.RetransmitsSent, err = meter.Int64Counter("rtps.retransmits_sent"); err != nil {
		return nil, err
	}
	if pm.ParticipantsDiscovered, err = meter.Int64Counter("rtps.participants_discovered"); err != nil {
		return nil, err
	}
	if pm.ParticipantsLost, err = meter.Int64Counter("rtps.participants_lost"); err != nil {
		return nil, err
	}
	if pm.ProxiesMatched, err = meter.Int64Counter("rtps.proxies_matched"); err != nil {
		return nil, err
	}
	if pm.IncompatibleQos, err = meter.Int64Counter("rtps.incompatible_qos"); err != nil {
		return nil, err
	}
	return pm, nil
}
