// Package settings persists per-flow-type preferences: the last-used
// specification version and the enabled advanced feature set. Validation of
// spec/flow pairings is the orchestrator's job, not this package's.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oauthlab/playground/flow"
	"github.com/oauthlab/playground/storage"
)

// DefaultSpecVersion is returned when a flow type has no stored preference.
var DefaultSpecVersion = flow.SpecOIDC

// Store reads and writes flow settings. Storage failures on the read path
// degrade to defaults; the playground never crashes because a preference
// could not be loaded.
type Store struct {
	backend storage.Store
	logger  *slog.Logger
}

// NewStore creates a settings store. A nil logger uses slog.Default().
func NewStore(backend storage.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger}
}

// flowSettingsRecord is the persisted shape of a flow's settings.
type flowSettingsRecord struct {
	SpecVersion string `json:"specVersion"`
}

// SpecVersion returns the last-persisted spec version for a flow type, or
// DefaultSpecVersion when none is stored or storage is unavailable.
func (s *Store) SpecVersion(ctx context.Context, t flow.Type) flow.SpecVersion {
	data, err := s.backend.Get(ctx, storage.FlowSettingsKey(string(t)))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to load flow settings, using default spec version",
				"flow_type", t, "error", err)
		}
		return DefaultSpecVersion
	}

	var rec flowSettingsRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("corrupt flow settings record, using default spec version",
			"flow_type", t, "error", err)
		return DefaultSpecVersion
	}

	spec, err := flow.ParseSpecVersion(rec.SpecVersion)
	if err != nil {
		return DefaultSpecVersion
	}
	return spec
}

// SaveSpecVersion persists the spec version for a flow type. Idempotent;
// no compatibility validation is performed here.
func (s *Store) SaveSpecVersion(ctx context.Context, t flow.Type, spec flow.SpecVersion) error {
	data, err := json.Marshal(flowSettingsRecord{SpecVersion: string(spec)})
	if err != nil {
		return fmt.Errorf("encoding flow settings: %w", err)
	}
	if err := s.backend.Set(ctx, storage.FlowSettingsKey(string(t)), data); err != nil {
		return fmt.Errorf("saving flow settings for %q: %w", t, err)
	}
	return nil
}

// AdvancedFeatures returns the enabled advanced feature set for a flow type.
// Missing or unreadable records yield an empty set.
func (s *Store) AdvancedFeatures(ctx context.Context, t flow.Type) []flow.FeatureID {
	data, err := s.backend.Get(ctx, storage.AdvancedFeaturesKey(string(t)))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to load advanced features, using empty set",
				"flow_type", t, "error", err)
		}
		return nil
	}

	var features []flow.FeatureID
	if err := json.Unmarshal(data, &features); err != nil {
		s.logger.Warn("corrupt advanced features record, using empty set",
			"flow_type", t, "error", err)
		return nil
	}
	return features
}

// SaveAdvancedFeatures persists the enabled advanced feature set for a flow
// type. Duplicates are collapsed; order is preserved.
func (s *Store) SaveAdvancedFeatures(ctx context.Context, t flow.Type, features []flow.FeatureID) error {
	seen := make(map[flow.FeatureID]bool, len(features))
	deduped := make([]flow.FeatureID, 0, len(features))
	for _, f := range features {
		if !seen[f] {
			seen[f] = true
			deduped = append(deduped, f)
		}
	}

	data, err := json.Marshal(deduped)
	if err != nil {
		return fmt.Errorf("encoding advanced features: %w", err)
	}
	if err := s.backend.Set(ctx, storage.AdvancedFeaturesKey(string(t)), data); err != nil {
		return fmt.Errorf("saving advanced features for %q: %w", t, err)
	}
	return nil
}
