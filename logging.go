package agentloom

import (
	"github.com/agentloom/agentloom/internal/logging"
)

// LoggingConfig configures logging behavior for agentloom. The implementation
// lives in internal/logging so subpackages can share it.
type LoggingConfig = logging.LoggingConfig

var (
	// DefaultLoggingConfig returns default logging configuration.
	DefaultLoggingConfig = logging.DefaultLoggingConfig

	// RedactValue walks a JSON-serializable value and masks sensitive keys.
	RedactValue = logging.RedactValue
)
