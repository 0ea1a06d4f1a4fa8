package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds the dashboard server's metric instruments.
type Metrics struct {
	RequestDuration metric.Float64Histogram
	QueryDuration   metric.Float64Histogram
	MutationsTotal  metric.Int64Counter
	BroadcastsTotal metric.Int64Counter
	StreamClients   metric.Int64UpDownCounter
	DemoAdvances    metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RequestDuration, err = meter.Float64Histogram("clawcontrol.request.duration",
		metric.WithDescription("API request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.QueryDuration, err = meter.Float64Histogram("clawcontrol.db.query.duration",
		metric.WithDescription("Storage query duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.MutationsTotal, err = meter.Int64Counter("clawcontrol.mutations",
		metric.WithDescription("Committed entity mutations"),
	)
	if err != nil {
		return nil, err
	}

	m.BroadcastsTotal, err = meter.Int64Counter("clawcontrol.broadcasts",
		metric.WithDescription("Events fanned out to stream clients"),
	)
	if err != nil {
		return nil, err
	}

	m.StreamClients, err = meter.Int64UpDownCounter("clawcontrol.stream.clients",
		metric.WithDescription("Currently connected stream clients"),
	)
	if err != nil {
		return nil, err
	}

	m.DemoAdvances, err = meter.Int64Counter("clawcontrol.demo.advances",
		metric.WithDescription("Task advancements performed by demo mode"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
