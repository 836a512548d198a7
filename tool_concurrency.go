package agentloom

// ConcurrencyMode controls whether a tool can run in parallel.
// Tools marked ConcurrencySerial never run concurrently with other tool
// calls, even when parallel execution is enabled on the agent.
type ConcurrencyMode string

const (
	ConcurrencyParallel ConcurrencyMode = "parallel"
	ConcurrencySerial   ConcurrencyMode = "serial"
)
