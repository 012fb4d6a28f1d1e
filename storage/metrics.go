package storage

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/oauthlab/playground/instrumentation"
)

// ObserveOperation records one storage operation on the shared instruments.
// It is a no-op when inst is nil, so backends can leave instrumentation
// optional.
func ObserveOperation(ctx context.Context, inst *instrumentation.Instrumentation, backend, op string, start time.Time, err error) {
	if inst == nil {
		return
	}

	status := "ok"
	if err != nil && err != ErrNotFound {
		status = "error"
	}

	attrs := metric.WithAttributes(
		attribute.String(instrumentation.AttrBackend, backend),
		attribute.String(instrumentation.AttrOperation, op),
		attribute.String(instrumentation.AttrStatus, status),
	)

	m := inst.Metrics()
	m.StorageOperationsTotal.Add(ctx, 1, attrs)
	m.StorageOperationDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
}
