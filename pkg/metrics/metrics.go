// Package metrics builds the OpenTelemetry meter provider used by the watcher
// and exports it through a Prometheus registry.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// DefaultBuckets are histogram buckets in seconds sized for a polling cycle:
// a fast fetch lands in the first buckets, a capture plus SMTP dispatch in the last.
var DefaultBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60} //nolint: gochecknoglobals

// NewMeterProvider returns a meter provider whose instruments are collected
// by reg.
func NewMeterProvider(reg prometheus.Registerer) (*sdkmetric.MeterProvider, error) {
	exp, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("could not create otel exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp)), nil
}
