package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor logs playground security events. Environment and client
// identifiers are hashed before logging so audit trails can be correlated
// without exposing tenant configuration.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new auditor. A nil logger uses slog.Default().
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{logger: logger, enabled: enabled}
}

// Event is a single audit record.
type Event struct {
	Type      string
	FlowKey   string
	ClientID  string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs an audit event with hashed identifiers.
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"flow_key", event.FlowKey,
		"client_id_hash", hashForLogging(event.ClientID),
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogCredentialsSaved logs a credential persistence flush.
func (a *Auditor) LogCredentialsSaved(flowKey, clientID string, encrypted bool) {
	a.LogEvent(Event{
		Type:     "credentials_saved",
		FlowKey:  flowKey,
		ClientID: clientID,
		Details:  map[string]any{"encrypted_at_rest": encrypted},
	})
}

// LogFlowTransition logs a spec/flow selection change.
func (a *Auditor) LogFlowTransition(flowKey, trigger string) {
	a.LogEvent(Event{
		Type:    "flow_transition",
		FlowKey: flowKey,
		Details: map[string]any{"trigger": trigger},
	})
}

// LogSpecResolved logs an automatic spec version switch made to legalize a
// requested flow type.
func (a *Auditor) LogSpecResolved(requestedFlow, resolvedSpec string) {
	a.LogEvent(Event{
		Type: "spec_resolved",
		Details: map[string]any{
			"requested_flow": requestedFlow,
			"resolved_spec":  resolvedSpec,
		},
	})
}

// LogExportGenerated logs a collection export.
func (a *Auditor) LogExportGenerated(flowKey, clientID string) {
	a.LogEvent(Event{
		Type:     "collection_exported",
		FlowKey:  flowKey,
		ClientID: clientID,
	})
}

// hashForLogging returns a short SHA-256 prefix of a value, or "-" for
// empty input. Enough for correlation, useless for recovery.
func hashForLogging(value string) string {
	if value == "" {
		return "-"
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:16]
}
