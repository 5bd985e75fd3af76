package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope used for aios instruments.
const MeterName = "github.com/vanderheijden86/aios"

// RegisterOTel exposes every counter as an observable OpenTelemetry counter on
// meter. A nil meter uses the global MeterProvider. The returned registration
// can be unregistered on shutdown.
func RegisterOTel(meter metric.Meter) (metric.Registration, error) {
	if meter == nil {
		meter = otel.Meter(MeterName)
	}

	counters := AllCounters()
	observables := make([]metric.Observable, 0, len(counters))
	instruments := make(map[*Counter]metric.Int64ObservableCounter, len(counters))
	for _, c := range counters {
		inst, err := meter.Int64ObservableCounter(c.name, metric.WithDescription(c.description))
		if err != nil {
			return nil, fmt.Errorf("registering %s: %w", c.name, err)
		}
		instruments[c] = inst
		observables = append(observables, inst)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for c, inst := range instruments {
			o.ObserveInt64(inst, c.Value())
		}
		return nil
	}, observables...)
}
