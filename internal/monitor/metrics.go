package monitor

import (
	"context"
	"fmt"
	"ticketwatch/pkg/domain"
	"ticketwatch/pkg/metrics"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "ticketwatch/internal/monitor"

type instruments struct {
	cycles     metric.Int64Counter
	deliveries metric.Int64Counter
	duration   metric.Float64Histogram
}

func newInstruments(mp metric.MeterProvider) (*instruments, error) {
	meter := mp.Meter(instrumentationName)

	cycles, err := meter.Int64Counter("ticketwatch_cycles",
		metric.WithDescription("Completed polling cycles by outcome."))
	if err != nil {
		return nil, fmt.Errorf("could not create cycles counter: %w", err)
	}

	deliveries, err := meter.Int64Counter("ticketwatch_notifications",
		metric.WithDescription("Notification attempts by channel and result."))
	if err != nil {
		return nil, fmt.Errorf("could not create notifications counter: %w", err)
	}

	duration, err := meter.Float64Histogram("ticketwatch_cycle_duration",
		metric.WithDescription("Work time of a polling cycle, sleep excluded."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.DefaultBuckets...))
	if err != nil {
		return nil, fmt.Errorf("could not create cycle duration histogram: %w", err)
	}

	return &instruments{cycles: cycles, deliveries: deliveries, duration: duration}, nil
}

func (i *instruments) record(ctx context.Context, result domain.CycleResult) {
	outcome := metric.WithAttributes(attribute.String("outcome", string(result.Outcome)))
	i.cycles.Add(ctx, 1, outcome)
	i.duration.Record(ctx, result.Elapsed.Seconds(), outcome)

	for _, d := range result.Deliveries {
		status := "ok"
		if !d.OK() {
			status = "failed"
		}
		i.deliveries.Add(ctx, 1, metric.WithAttributes(
			attribute.String("channel", string(d.Channel)),
			attribute.String("result", status),
		))
	}
}

