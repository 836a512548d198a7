package agentloom

import (
	"github.com/agentloom/agentloom/internal/timeout"
)

// TimeoutConfig sets per-stage deadlines for an agent run. A zero duration
// disables the deadline for that stage.
type TimeoutConfig = timeout.TimeoutConfig

var (
	// DefaultTimeoutConfig bounds a run at five minutes with tighter caps
	// on individual LLM and tool calls.
	DefaultTimeoutConfig = timeout.DefaultTimeoutConfig

	// NoTimeouts disables every deadline.
	NoTimeouts = timeout.NoTimeouts
)
