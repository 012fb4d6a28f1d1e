package storage

const (
	// SharedCredentialsKey holds credentials shared across all flows.
	SharedCredentialsKey = "shared-credentials-v8u"

	// GlobalEnvironmentKey holds the application-wide environment id used
	// as the last fallback when merging credentials.
	GlobalEnvironmentKey = "global-environment-id"

	// flowCredentialsSuffix versions the per-flow credential records.
	flowCredentialsSuffix = "-v8u"

	flowSettingsPrefix     = "flow-settings-"
	advancedFeaturesPrefix = "advanced-features-"
)

// FlowCredentialsKey returns the storage key for flow-specific credentials,
// in the form "{specVersion}-{flowType}-v8u". flowKey is the derived
// "{specVersion}-{flowType}" partition key.
func FlowCredentialsKey(flowKey string) string {
	return flowKey + flowCredentialsSuffix
}

// FlowSettingsKey returns the storage key for a flow type's settings record
// (last-used spec version).
func FlowSettingsKey(flowType string) string {
	return flowSettingsPrefix + flowType
}

// AdvancedFeaturesKey returns the storage key for a flow type's enabled
// advanced feature set.
func AdvancedFeaturesKey(flowType string) string {
	return advancedFeaturesPrefix + flowType
}
