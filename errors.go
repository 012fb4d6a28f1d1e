package playground

import (
	"errors"
	"fmt"

	"github.com/oauthlab/playground/flow"
)

var (
	// ErrClosed is returned by operations on an orchestrator after Close.
	ErrClosed = errors.New("orchestrator is closed")

	// ErrUnknownSpecVersion is returned for a spec version outside the
	// known set.
	ErrUnknownSpecVersion = errors.New("unknown spec version")

	// ErrUnknownFlowType is returned for a flow type outside the known set.
	ErrUnknownFlowType = errors.New("unknown flow type")
)

// ComplianceError reports a flow type that is not legal under a spec
// version. It blocks the transition but is not fatal: the current state is
// left untouched.
type ComplianceError struct {
	Spec flow.SpecVersion
	Flow flow.Type
}

func (e *ComplianceError) Error() string {
	return fmt.Sprintf("flow %q is not available under %s", e.Flow, e.Spec)
}

// ConfigError reports a required credential field that is missing before a
// flow step can run. Surfaced as a validation message, never fatal.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("required field %q is missing", e.Field)
}
