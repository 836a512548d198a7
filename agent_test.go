package agentloom

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentloom/agentloom/providers"
)

// newTestAgent builds an agent for tests, defaulting credentials so cases
// only spell out what they assert on.
func newTestAgent(t *testing.T, cfg Config) *Agent {
	t.Helper()
	if cfg.APIKey == "" && cfg.Provider == nil {
		cfg.APIKey = "test-key"
	}
	agent, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}
	return agent
}

func TestNewAgentDefaults(t *testing.T) {
	agent := newTestAgent(t, Config{Model: "gpt-4o"})

	if agent.model != "gpt-4o" {
		t.Errorf("model = %s, want gpt-4o", agent.model)
	}
	if agent.provider == nil {
		t.Error("provider should be initialized")
	}
	if agent.maxIterations != 5 {
		t.Errorf("maxIterations = %d, want default 5", agent.maxIterations)
	}

	// Zero-value config leaves temperature at 0 and streaming off.
	if agent.temperature != 0 {
		t.Errorf("temperature = %f, want 0", agent.temperature)
	}
	if agent.streamResponses {
		t.Error("streaming should be off by default")
	}
}

func TestNewAppliesConfig(t *testing.T) {
	librarianPrompt := func(ctx context.Context) string {
		return "You are the librarian for the documentation corpus."
	}

	agent := newTestAgent(t, Config{
		Model:           "gpt-4o-mini",
		SystemPromptFn:  librarianPrompt,
		MaxIterations:   8,
		Temperature:     0.3,
		StreamResponses: true,
	})

	if agent.model != "gpt-4o-mini" {
		t.Errorf("model = %s, want gpt-4o-mini", agent.model)
	}
	if agent.systemPromptFn == nil {
		t.Error("systemPromptFn should be set")
	}
	if agent.maxIterations != 8 {
		t.Errorf("maxIterations = %d, want 8", agent.maxIterations)
	}
	if agent.temperature != 0.3 {
		t.Errorf("temperature = %f, want 0.3", agent.temperature)
	}
	if !agent.streamResponses {
		t.Error("streaming should be on")
	}
}

func TestRegisterTool(t *testing.T) {
	agent := newTestAgent(t, Config{Model: "gpt-4o"})

	agent.AddTool(NewTool("search_corpus").
		WithDescription("Full-text search over indexed documents").
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"hits": 3}, nil
		}).
		Build())

	if len(agent.tools) != 1 {
		t.Fatalf("registered tools = %d, want 1", len(agent.tools))
	}
	registered, ok := agent.tools["search_corpus"]
	if !ok {
		t.Fatal("search_corpus should be registered")
	}
	if registered.name != "search_corpus" {
		t.Errorf("tool name = %s, want search_corpus", registered.name)
	}
}

func TestRegisterSeveralTools(t *testing.T) {
	agent := newTestAgent(t, Config{Model: "gpt-4o"})

	noop := func(ctx context.Context, args map[string]any) (any, error) {
		return nil, nil
	}

	names := []string{"search_corpus", "tag_document", "link_nodes"}
	for _, name := range names {
		agent.AddTool(NewTool(name).WithHandler(noop).Build())
	}

	if len(agent.tools) != len(names) {
		t.Fatalf("registered tools = %d, want %d", len(agent.tools), len(names))
	}
	for _, name := range names {
		if _, ok := agent.tools[name]; !ok {
			t.Errorf("%s should be registered", name)
		}
	}
}

func TestSystemPromptDeps(t *testing.T) {
	type corpusDeps struct {
		Workspace string
	}

	prompt := func(ctx context.Context) string {
		deps, err := GetDeps[corpusDeps](ctx)
		if err != nil {
			return "Indexing workspace scratch"
		}
		return "Indexing workspace " + deps.Workspace
	}

	agent := newTestAgent(t, Config{Model: "gpt-4o", SystemPromptFn: prompt})
	if agent.systemPromptFn == nil {
		t.Fatal("systemPromptFn should be set")
	}

	ctx := WithDeps(context.Background(), corpusDeps{Workspace: "handbook"})
	if got := agent.systemPromptFn(ctx); got != "Indexing workspace handbook" {
		t.Errorf("deps-aware prompt = %q", got)
	}

	// Without injected deps the prompt falls back to its default.
	if got := agent.systemPromptFn(context.Background()); got != "Indexing workspace scratch" {
		t.Errorf("fallback prompt = %q", got)
	}
}

func TestMaxIterationsOverride(t *testing.T) {
	agent := newTestAgent(t, Config{Model: "gpt-4o", MaxIterations: 12})

	if agent.maxIterations != 12 {
		t.Errorf("maxIterations = %d, want 12", agent.maxIterations)
	}
}

func TestTemperatureRange(t *testing.T) {
	tests := []struct {
		name        string
		temperature float32
	}{
		{"deterministic", 0.1},
		{"balanced", 0.7},
		{"exploratory", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := newTestAgent(t, Config{Model: "gpt-4o", Temperature: tt.temperature})

			if agent.temperature != tt.temperature {
				t.Errorf("temperature = %f, want %f", agent.temperature, tt.temperature)
			}
		})
	}
}

func TestStreamingToggle(t *testing.T) {
	for _, stream := range []bool{true, false} {
		agent := newTestAgent(t, Config{Model: "gpt-4o", StreamResponses: stream})

		if agent.streamResponses != stream {
			t.Errorf("streamResponses = %v, want %v", agent.streamResponses, stream)
		}
	}
}

func TestEventBufferConfig(t *testing.T) {
	agent := newTestAgent(t, Config{Model: "gpt-4o", EventBuffer: 64})
	if agent.eventBuffer != 64 {
		t.Fatalf("eventBuffer = %d, want 64", agent.eventBuffer)
	}

	defaultAgent := newTestAgent(t, Config{Model: "gpt-4o"})
	if defaultAgent.eventBuffer != defaultEventBuffer {
		t.Fatalf("eventBuffer = %d, want default %d", defaultAgent.eventBuffer, defaultEventBuffer)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model != "gpt-4o-mini" {
		t.Errorf("Model = %s, want gpt-4o-mini", cfg.Model)
	}
	if cfg.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", cfg.MaxIterations)
	}
	if cfg.Temperature != 0.7 {
		t.Errorf("Temperature = %f, want 0.7", cfg.Temperature)
	}
	if !cfg.StreamResponses {
		t.Error("StreamResponses should default to true")
	}
}

// drainEvents reads from an event channel until it closes or the wait elapses.
func drainEvents(events <-chan Event, wait time.Duration) []Event {
	var drained []Event
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return drained
			}
			drained = append(drained, event)
		case <-timer.C:
			return drained
		}
	}
}

func TestDrainEvents(t *testing.T) {
	events := make(chan Event, 3)
	events <- ActionDetected("Searching corpus for stale entries", "call_1")
	events <- ThinkingChunk("Two entries reference a retired page.")
	events <- FinalOutput("done", "Removed 2 stale entries.")
	close(events)

	drained := drainEvents(events, 100*time.Millisecond)

	if len(drained) != 3 {
		t.Fatalf("drained %d events, want 3", len(drained))
	}
	if drained[0].Type != EventTypeActionDetected {
		t.Error("first event should be action detected")
	}
	if drained[2].Type != EventTypeFinalOutput {
		t.Error("last event should be final output")
	}
}

func TestReasoningEffortLevels(t *testing.T) {
	efforts := []providers.ReasoningEffort{
		providers.ReasoningEffortNone,
		providers.ReasoningEffortMinimal,
		providers.ReasoningEffortLow,
		providers.ReasoningEffortMedium,
		providers.ReasoningEffortHigh,
	}

	for _, effort := range efforts {
		if _, err := New(Config{
			APIKey:          "test-key",
			Model:           "o3-mini",
			ReasoningEffort: effort,
		}); err != nil {
			t.Errorf("effort %q: unexpected error: %v", effort, err)
		}
	}
}

func TestConfigValidation(t *testing.T) {
	base := Config{APIKey: "test-key", Model: "gpt-4o"}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"no credentials", func(c *Config) { c.APIKey = "" }, ErrMissingAPIKey},
		{"injected provider needs no key", func(c *Config) { c.APIKey = ""; c.Provider = NewMockLLM() }, nil},
		{"iterations below floor", func(c *Config) { c.MaxIterations = -1 }, ErrInvalidIterations},
		{"iterations above cap", func(c *Config) { c.MaxIterations = 101 }, ErrInvalidIterations},
		{"temperature below range", func(c *Config) { c.Temperature = -0.1 }, ErrInvalidTemperature},
		{"temperature above range", func(c *Config) { c.Temperature = 2.1 }, ErrInvalidTemperature},
		{"unknown reasoning effort", func(c *Config) { c.ReasoningEffort = "turbo" }, ErrInvalidReasoningEffort},
		{"fully specified config", func(c *Config) { c.MaxIterations = 5; c.Temperature = 0.7 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)

			_, err := New(cfg)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
