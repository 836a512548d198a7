// Package timeout centralizes the deadlines applied to the stages of an
// agent run.
package timeout

import "time"

// TimeoutConfig holds per-stage deadlines. A zero duration disables the
// deadline for that stage.
type TimeoutConfig struct {
	AgentExecution time.Duration // whole run, first prompt to final output
	LLMCall        time.Duration // single completion or stream request
	ToolExecution  time.Duration // single tool invocation
	StreamChunk    time.Duration // gap between consecutive stream chunks
}

// DefaultTimeoutConfig bounds a run at five minutes with tighter caps on
// individual calls.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		AgentExecution: 5 * time.Minute,
		LLMCall:        30 * time.Second,
		ToolExecution:  10 * time.Second,
		StreamChunk:    5 * time.Second,
	}
}

// NoTimeouts disables every deadline. Handy when stepping through a run in
// a debugger, where any wall-clock cap would fire spuriously.
func NoTimeouts() TimeoutConfig {
	return TimeoutConfig{}
}
