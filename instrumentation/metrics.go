package instrumentation

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Attribute keys used on playground metrics. Only identifiers and metadata
// are recorded; credential values never appear in metric attributes.
const (
	AttrSpecVersion = "playground.spec_version"
	AttrFlowType    = "playground.flow_type"
	AttrTrigger     = "playground.trigger" // user | route | resolution
	AttrBackend     = "playground.storage.backend"
	AttrOperation   = "playground.storage.operation"
	AttrStatus      = "playground.status" // ok | error
	AttrEndpoint    = "playground.idp.endpoint"
)

// Metrics holds all metric instruments for the playground.
type Metrics struct {
	// HTTP layer
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	RateLimitExceeded   metric.Int64Counter

	// Orchestrator
	FlowTransitions   metric.Int64Counter
	SpecResolutions   metric.Int64Counter
	StepNavigations   metric.Int64Counter
	CredentialSaves   metric.Int64Counter
	ActiveSubscribers metric.Int64UpDownCounter

	// Storage
	StorageOperationsTotal   metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram

	// Identity provider calls
	ProviderCallsTotal   metric.Int64Counter
	ProviderCallDuration metric.Float64Histogram

	// Export
	CollectionsExported metric.Int64Counter
}

// newMetrics creates and registers all metric instruments.
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	var err error

	httpMeter := inst.Meter("http")
	orchMeter := inst.Meter("orchestrator")
	storageMeter := inst.Meter("storage")
	idpMeter := inst.Meter("idp")

	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"playground.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"playground.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.RateLimitExceeded, err = httpMeter.Int64Counter(
		"playground.http.rate_limit.exceeded",
		metric.WithDescription("Number of requests rejected by rate limiting"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	m.FlowTransitions, err = orchMeter.Int64Counter(
		"playground.flow.transitions",
		metric.WithDescription("Number of spec/flow selection transitions applied"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.transitions counter: %w", err)
	}

	m.SpecResolutions, err = orchMeter.Int64Counter(
		"playground.flow.spec_resolutions",
		metric.WithDescription("Number of automatic spec version resolutions for illegal flow selections"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.spec_resolutions counter: %w", err)
	}

	m.StepNavigations, err = orchMeter.Int64Counter(
		"playground.flow.step_navigations",
		metric.WithDescription("Number of step navigation events"),
		metric.WithUnit("{navigation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.step_navigations counter: %w", err)
	}

	m.CredentialSaves, err = orchMeter.Int64Counter(
		"playground.credentials.saves",
		metric.WithDescription("Number of debounced credential persistence flushes"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credentials.saves counter: %w", err)
	}

	m.ActiveSubscribers, err = orchMeter.Int64UpDownCounter(
		"playground.orchestrator.subscribers",
		metric.WithDescription("Number of active state change subscribers"),
		metric.WithUnit("{subscriber}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator.subscribers counter: %w", err)
	}

	m.StorageOperationsTotal, err = storageMeter.Int64Counter(
		"playground.storage.operations.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operations.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"playground.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.ProviderCallsTotal, err = idpMeter.Int64Counter(
		"playground.idp.calls.total",
		metric.WithDescription("Total number of identity provider API calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create idp.calls.total counter: %w", err)
	}

	m.ProviderCallDuration, err = idpMeter.Float64Histogram(
		"playground.idp.call.duration",
		metric.WithDescription("Identity provider API call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create idp.call.duration histogram: %w", err)
	}

	m.CollectionsExported, err = idpMeter.Int64Counter(
		"playground.export.collections",
		metric.WithDescription("Number of request collections exported"),
		metric.WithUnit("{collection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create export.collections counter: %w", err)
	}

	return m, nil
}
