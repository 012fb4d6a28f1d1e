package playground

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/oauthlab/playground/credentials"
	"github.com/oauthlab/playground/flow"
	"github.com/oauthlab/playground/instrumentation"
	"github.com/oauthlab/playground/settings"
)

// State is one immutable snapshot of the orchestrator. Snapshots are what
// subscribers receive and what the HTTP API serves.
type State struct {
	SpecVersion flow.SpecVersion        `json:"specVersion"`
	FlowType    flow.Type               `json:"flowType"`
	FlowKey     string                  `json:"flowKey"`
	Step        int                     `json:"step"`
	TotalSteps  int                     `json:"totalSteps"`
	Route       string                  `json:"route"`
	Credentials credentials.Credentials `json:"credentials"`
	Features    []flow.FeatureID        `json:"features,omitempty"`
}

// Orchestrator is the playground's flow state machine. It owns the selected
// spec version and flow type, enforces the compatibility table between
// them, merges credentials from their storage tiers, and keeps the route,
// in-memory state, and persisted settings consistent.
//
// All mutations go through one mutex: state, route, and storage can only
// change under a single writer, which is what breaks the feedback loops a
// reactive three-way sync is prone to. The other half of the loop guard is
// lastAppliedRoute: HandleRoute ignores a route the orchestrator itself
// just produced, so a caller echoing state changes back as route changes
// cannot re-trigger the transition.
type Orchestrator struct {
	cfg      Config
	logger   *slog.Logger
	settings *settings.Store
	creds    *credentials.Store

	mu    sync.Mutex
	state State

	// Credential tiers backing state.Credentials. flowPartial is the
	// working copy user edits fold into before the debounced save.
	flowPartial   credentials.Partial
	sharedPartial credentials.Partial
	globalEnvID   string

	lastAppliedRoute string

	saveTimer   *time.Timer
	savePending bool

	subscribers map[string]chan State
	closed      bool
}

// New creates an orchestrator and loads its initial state from storage:
// the default flow's preferred spec version, its credential tiers, and its
// advanced feature set.
func New(ctx context.Context, cfg Config) (*Orchestrator, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	credOpts := []credentials.StoreOption{credentials.WithLogger(cfg.Logger)}
	if cfg.Encryptor != nil {
		credOpts = append(credOpts, credentials.WithEncryptor(cfg.Encryptor))
	}

	o := &Orchestrator{
		cfg:         cfg,
		logger:      cfg.Logger,
		settings:    settings.NewStore(cfg.Storage, cfg.Logger),
		creds:       credentials.NewStore(cfg.Storage, credOpts...),
		subscribers: make(map[string]chan State),
	}

	t := cfg.DefaultFlow
	spec := o.settings.SpecVersion(ctx, t)
	if !flow.Available(spec, t) {
		spec, _ = flow.ResolveSpec(t)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.reloadLocked(ctx, spec, t, 0)
	return o, nil
}

// RoutePrefix returns the path segment flow routes are mounted under.
func (o *Orchestrator) RoutePrefix() string {
	return o.cfg.RoutePrefix
}

// State returns the current snapshot.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// SelectSpec switches the specification version. If the current flow type
// is not legal under the new version, the first available flow for that
// version is selected instead. The pairing is persisted as the flow's
// preference and the walkthrough restarts at step 0.
func (o *Orchestrator) SelectSpec(ctx context.Context, spec flow.SpecVersion) (State, error) {
	if !spec.Valid() {
		return State{}, ErrUnknownSpecVersion
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, ErrClosed
	}

	t := o.state.FlowType
	if !flow.Available(spec, t) {
		t = flow.AvailableFlows(spec)[0]
		o.logger.Info("flow not available under selected spec, switching flow",
			"spec_version", spec, "flow_type", t)
	}

	return o.transitionLocked(ctx, spec, t, "user")
}

// SelectFlow switches the flow type. The current spec version is kept
// when it legalizes the flow; otherwise the spec versions are searched in
// their fixed order and the first legal one is adopted.
func (o *Orchestrator) SelectFlow(ctx context.Context, t flow.Type) (State, error) {
	if !t.Valid() {
		return State{}, ErrUnknownFlowType
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, ErrClosed
	}

	spec := o.state.SpecVersion
	trigger := "user"
	if !flow.Available(spec, t) {
		resolved, ok := flow.ResolveSpec(t)
		if !ok {
			return State{}, &ComplianceError{Spec: spec, Flow: t}
		}
		spec = resolved
		trigger = "resolution"

		o.cfg.Auditor.LogSpecResolved(string(t), string(spec))
		o.countResolution(ctx, spec, t)
	}

	return o.transitionLocked(ctx, spec, t, trigger)
}

// HandleRoute adopts an externally observed route (deep link, history
// navigation) into state. A route the orchestrator itself just produced is
// ignored, which breaks the state-to-route-to-state cycle. The step segment
// is clamped into the flow's valid range.
func (o *Orchestrator) HandleRoute(ctx context.Context, path string) (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, ErrClosed
	}

	// Ignore echoes: both the canonical route the orchestrator last wrote
	// and the raw path it last adopted. Without this guard a caller
	// mirroring state into the URL re-triggers the transition forever.
	if path == o.lastAppliedRoute || path == o.state.Route {
		return o.snapshotLocked(), nil
	}

	r, err := flow.ParseRoute(o.cfg.RoutePrefix, path)
	if err != nil {
		return State{}, err
	}

	t := r.Flow
	spec := o.state.SpecVersion
	if !flow.Available(spec, t) {
		resolved, ok := flow.ResolveSpec(t)
		if !ok {
			return State{}, &ComplianceError{Spec: spec, Flow: t}
		}
		spec = resolved

		o.cfg.Auditor.LogSpecResolved(string(t), string(spec))
		o.countResolution(ctx, spec, t)
	}

	if t != o.state.FlowType || spec != o.state.SpecVersion {
		o.flushSaveLocked(ctx)
		if err := o.settings.SaveSpecVersion(ctx, t, spec); err != nil {
			o.logger.Warn("failed to persist spec preference", "flow_type", t, "error", err)
		}
		o.reloadLocked(ctx, spec, t, r.Step)
		o.cfg.Auditor.LogFlowTransition(o.state.FlowKey, "route")
		o.countTransition(ctx, spec, t, "route")
	} else {
		o.state.Step = flow.ClampStep(t, o.state.Credentials.UsePKCE, r.Step)
		o.state.Route = flow.FormatRoute(o.cfg.RoutePrefix, t, o.state.Step)
		o.countNavigation(ctx, t, "route")
	}

	// Remember the path as observed, not its canonical form: the same
	// external route arriving again must stay a no-op even when the step
	// was clamped.
	o.lastAppliedRoute = path

	o.publishLocked()
	return o.snapshotLocked(), nil
}

// GoToStep jumps to a step, clamped into the flow's valid range.
func (o *Orchestrator) GoToStep(n int) (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, ErrClosed
	}
	return o.goToStepLocked(n), nil
}

// Advance moves one step forward, clamped at the last step.
func (o *Orchestrator) Advance() (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, ErrClosed
	}
	return o.goToStepLocked(o.state.Step + 1), nil
}

// Back moves one step backward, clamped at step 0.
func (o *Orchestrator) Back() (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, ErrClosed
	}
	return o.goToStepLocked(o.state.Step - 1), nil
}

func (o *Orchestrator) goToStepLocked(n int) State {
	t := o.state.FlowType
	o.state.Step = flow.ClampStep(t, o.state.Credentials.UsePKCE, n)
	o.setRouteLocked()
	o.countNavigation(context.Background(), t, "user")
	o.publishLocked()
	return o.snapshotLocked()
}

// UpdateCredentials folds an edit into the flow-specific tier. The merged
// record updates immediately; the storage write is debounced so rapid edits
// coalesce into one write. Toggling PKCE can shrink the step sequence, in
// which case the current step is re-clamped.
func (o *Orchestrator) UpdateCredentials(ctx context.Context, update credentials.Partial) (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, ErrClosed
	}

	o.flowPartial = o.flowPartial.Overlay(update)
	o.state.Credentials = credentials.Merge(o.flowPartial, o.sharedPartial, o.globalEnvID)
	o.state.TotalSteps = flow.TotalSteps(o.state.FlowType, o.state.Credentials.UsePKCE)
	o.state.Step = flow.ClampStep(o.state.FlowType, o.state.Credentials.UsePKCE, o.state.Step)
	o.setRouteLocked()

	o.scheduleSaveLocked(ctx)
	o.publishLocked()
	return o.snapshotLocked(), nil
}

// UpdateSharedCredentials folds an edit into the shared tier and persists
// it immediately: the shared tier is edited rarely and feeds every flow.
func (o *Orchestrator) UpdateSharedCredentials(ctx context.Context, update credentials.Partial) (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, ErrClosed
	}

	o.sharedPartial = o.sharedPartial.Overlay(update)
	if err := o.creds.SaveShared(ctx, o.sharedPartial); err != nil {
		return State{}, err
	}

	o.state.Credentials = credentials.Merge(o.flowPartial, o.sharedPartial, o.globalEnvID)
	o.state.TotalSteps = flow.TotalSteps(o.state.FlowType, o.state.Credentials.UsePKCE)
	o.state.Step = flow.ClampStep(o.state.FlowType, o.state.Credentials.UsePKCE, o.state.Step)
	o.setRouteLocked()

	o.publishLocked()
	return o.snapshotLocked(), nil
}

// SetGlobalEnvironmentID persists the application-wide environment id
// fallback.
func (o *Orchestrator) SetGlobalEnvironmentID(ctx context.Context, id string) (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, ErrClosed
	}

	if err := o.creds.SaveGlobalEnvironmentID(ctx, id); err != nil {
		return State{}, err
	}
	o.globalEnvID = o.creds.GlobalEnvironmentID(ctx)
	o.state.Credentials = credentials.Merge(o.flowPartial, o.sharedPartial, o.globalEnvID)

	o.publishLocked()
	return o.snapshotLocked(), nil
}

// SetAdvancedFeatures persists the enabled advanced feature set for the
// current flow type.
func (o *Orchestrator) SetAdvancedFeatures(ctx context.Context, features []flow.FeatureID) (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, ErrClosed
	}

	if err := o.settings.SaveAdvancedFeatures(ctx, o.state.FlowType, features); err != nil {
		return State{}, err
	}
	o.state.Features = o.settings.AdvancedFeatures(ctx, o.state.FlowType)

	o.publishLocked()
	return o.snapshotLocked(), nil
}

// ResetFlow discards unsaved edits and reloads the current flow's
// credentials and settings from storage. Nothing is erased: reset means
// reload, and the walkthrough restarts at step 0.
func (o *Orchestrator) ResetFlow(ctx context.Context) (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, ErrClosed
	}

	o.cancelSaveLocked()
	o.reloadLocked(ctx, o.state.SpecVersion, o.state.FlowType, 0)
	o.publishLocked()
	return o.snapshotLocked(), nil
}

// Flush writes any pending debounced credential edit to storage now.
func (o *Orchestrator) Flush(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushSaveLocked(ctx)
}

// Subscribe registers for state snapshots. The returned channel has a
// buffer of one and always holds the latest snapshot: a slow consumer sees
// states coalesce rather than blocking the orchestrator. The cancel
// function releases the subscription.
func (o *Orchestrator) Subscribe() (<-chan State, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan State, 1)
	if o.closed {
		close(ch)
		return ch, func() {}
	}

	id := uuid.NewString()
	o.subscribers[id] = ch
	ch <- o.snapshotLocked()

	if o.cfg.Instrumentation != nil {
		o.cfg.Instrumentation.Metrics().ActiveSubscribers.Add(context.Background(), 1)
	}

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if sub, ok := o.subscribers[id]; ok {
			delete(o.subscribers, id)
			close(sub)
			if o.cfg.Instrumentation != nil {
				o.cfg.Instrumentation.Metrics().ActiveSubscribers.Add(context.Background(), -1)
			}
		}
	}
}

// Close flushes any pending credential save and releases all
// subscriptions. The orchestrator rejects further mutations.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}

	o.flushSaveLocked(context.Background())
	for id, ch := range o.subscribers {
		delete(o.subscribers, id)
		close(ch)
	}
	o.closed = true
	return nil
}

// transitionLocked moves to a new spec/flow pairing: flushes pending edits
// under the old flow key, persists the pairing as the flow's preference,
// reloads the new flow's tiers, and restarts at step 0.
func (o *Orchestrator) transitionLocked(ctx context.Context, spec flow.SpecVersion, t flow.Type, trigger string) (State, error) {
	o.flushSaveLocked(ctx)

	if err := o.settings.SaveSpecVersion(ctx, t, spec); err != nil {
		o.logger.Warn("failed to persist spec preference", "flow_type", t, "error", err)
	}

	o.reloadLocked(ctx, spec, t, 0)

	o.cfg.Auditor.LogFlowTransition(o.state.FlowKey, trigger)
	o.countTransition(ctx, spec, t, trigger)
	o.logger.Info("flow transition",
		"spec_version", spec,
		"flow_type", t,
		"flow_key", o.state.FlowKey,
		"trigger", trigger)

	o.publishLocked()
	return o.snapshotLocked(), nil
}

// reloadLocked rebuilds state from storage for a spec/flow pairing. Read
// failures inside the stores degrade to empty tiers.
func (o *Orchestrator) reloadLocked(ctx context.Context, spec flow.SpecVersion, t flow.Type, step int) {
	flowKey := flow.Key(spec, t)

	flowPartial, err := o.creds.LoadFlow(ctx, flowKey)
	if err != nil {
		o.logger.Warn("failed to load flow credentials", "flow_key", flowKey, "error", err)
		flowPartial = credentials.Partial{}
	}
	shared, err := o.creds.LoadShared(ctx)
	if err != nil {
		o.logger.Warn("failed to load shared credentials", "error", err)
		shared = credentials.Partial{}
	}

	o.flowPartial = flowPartial
	o.sharedPartial = shared
	o.globalEnvID = o.creds.GlobalEnvironmentID(ctx)

	merged := credentials.Merge(o.flowPartial, o.sharedPartial, o.globalEnvID)

	o.state = State{
		SpecVersion: spec,
		FlowType:    t,
		FlowKey:     flowKey,
		TotalSteps:  flow.TotalSteps(t, merged.UsePKCE),
		Step:        flow.ClampStep(t, merged.UsePKCE, step),
		Credentials: merged,
		Features:    o.settings.AdvancedFeatures(ctx, t),
	}
	o.setRouteLocked()
}

// setRouteLocked recomputes the canonical route from state and records it
// as the last applied route so an echo of it is ignored.
func (o *Orchestrator) setRouteLocked() {
	o.state.Route = flow.FormatRoute(o.cfg.RoutePrefix, o.state.FlowType, o.state.Step)
	o.lastAppliedRoute = o.state.Route
}

// scheduleSaveLocked arms the debounced save of the flow-specific tier.
func (o *Orchestrator) scheduleSaveLocked(ctx context.Context) {
	if o.cfg.SaveDebounce < 0 {
		o.savePending = true
		o.flushSaveLocked(ctx)
		return
	}

	o.savePending = true
	if o.saveTimer != nil {
		o.saveTimer.Stop()
	}
	o.saveTimer = time.AfterFunc(o.cfg.SaveDebounce, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.flushSaveLocked(context.Background())
	})
}

// flushSaveLocked writes the pending flow-specific tier, if any.
func (o *Orchestrator) flushSaveLocked(ctx context.Context) {
	if !o.savePending {
		return
	}
	o.cancelSaveLocked()

	flowKey := o.state.FlowKey
	if err := o.creds.SaveFlow(ctx, flowKey, o.flowPartial); err != nil {
		o.logger.Warn("failed to save flow credentials", "flow_key", flowKey, "error", err)
		return
	}

	o.cfg.Auditor.LogCredentialsSaved(flowKey, o.state.Credentials.ClientID, o.creds.EncryptionEnabled())
	if o.cfg.Instrumentation != nil {
		o.cfg.Instrumentation.Metrics().CredentialSaves.Add(ctx, 1, metric.WithAttributes(
			attribute.String(instrumentation.AttrFlowType, string(o.state.FlowType)),
		))
	}
}

// cancelSaveLocked discards the pending save without writing it.
func (o *Orchestrator) cancelSaveLocked() {
	o.savePending = false
	if o.saveTimer != nil {
		o.saveTimer.Stop()
		o.saveTimer = nil
	}
}

// snapshotLocked copies state for handing out. The features slice is
// copied so callers cannot alias internal state.
func (o *Orchestrator) snapshotLocked() State {
	s := o.state
	if len(o.state.Features) > 0 {
		s.Features = make([]flow.FeatureID, len(o.state.Features))
		copy(s.Features, o.state.Features)
	}
	return s
}

// publishLocked delivers the current snapshot to every subscriber. A full
// buffer is drained first so the channel always carries the latest state.
func (o *Orchestrator) publishLocked() {
	if len(o.subscribers) == 0 {
		return
	}
	s := o.snapshotLocked()
	for _, ch := range o.subscribers {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

func (o *Orchestrator) countTransition(ctx context.Context, spec flow.SpecVersion, t flow.Type, trigger string) {
	if o.cfg.Instrumentation == nil {
		return
	}
	o.cfg.Instrumentation.Metrics().FlowTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(instrumentation.AttrSpecVersion, string(spec)),
		attribute.String(instrumentation.AttrFlowType, string(t)),
		attribute.String(instrumentation.AttrTrigger, trigger),
	))
}

func (o *Orchestrator) countResolution(ctx context.Context, spec flow.SpecVersion, t flow.Type) {
	if o.cfg.Instrumentation == nil {
		return
	}
	o.cfg.Instrumentation.Metrics().SpecResolutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(instrumentation.AttrSpecVersion, string(spec)),
		attribute.String(instrumentation.AttrFlowType, string(t)),
	))
}

func (o *Orchestrator) countNavigation(ctx context.Context, t flow.Type, trigger string) {
	if o.cfg.Instrumentation == nil {
		return
	}
	o.cfg.Instrumentation.Metrics().StepNavigations.Add(ctx, 1, metric.WithAttributes(
		attribute.String(instrumentation.AttrFlowType, string(t)),
		attribute.String(instrumentation.AttrTrigger, trigger),
	))
}
