package agentloom

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestHandoffRegistry_Lifecycle(t *testing.T) {
	registry, err := NewHandoffRegistry("")
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	h, err := registry.Create("coordinator", "researcher", "find recent papers", HandoffContext{
		Background: "quarterly review",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if h.ID == "" {
		t.Error("Expected non-empty handoff ID")
	}
	if h.Status != HandoffStatusPending {
		t.Errorf("Expected pending status, got %s", h.Status)
	}
	if h.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}

	if err := registry.Begin(h.ID); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	got, err := registry.Get(h.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != HandoffStatusInProgress {
		t.Errorf("Expected in_progress status, got %s", got.Status)
	}

	result := &HandoffResult{Response: "found 12 papers", Summary: "Completed in 3 step(s)"}
	if err := registry.Complete(h.ID, result); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	got, err = registry.Get(h.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != HandoffStatusCompleted {
		t.Errorf("Expected completed status, got %s", got.Status)
	}
	if got.Result == nil || got.Result.Response != "found 12 papers" {
		t.Errorf("Expected result to be attached, got %+v", got.Result)
	}
	if got.CompletedAt == nil {
		t.Error("Expected CompletedAt to be set")
	}
	if got.Context.Background != "quarterly review" {
		t.Errorf("Expected context to round-trip, got %q", got.Context.Background)
	}
}

func TestHandoffRegistry_Fail(t *testing.T) {
	registry, err := NewHandoffRegistry("")
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	h, err := registry.Create("coordinator", "worker", "doomed task", HandoffContext{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := registry.Fail(h.ID, errors.New("worker crashed")); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	got, err := registry.Get(h.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != HandoffStatusFailed {
		t.Errorf("Expected failed status, got %s", got.Status)
	}
	if got.Error != "worker crashed" {
		t.Errorf("Expected error message 'worker crashed', got %q", got.Error)
	}
	if got.CompletedAt == nil {
		t.Error("Expected CompletedAt to be set on failure")
	}
}

func TestHandoffRegistry_NotFound(t *testing.T) {
	registry, err := NewHandoffRegistry("")
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	if _, err := registry.Get("missing"); !errors.Is(err, ErrHandoffNotFound) {
		t.Errorf("Get: expected ErrHandoffNotFound, got %v", err)
	}
	if err := registry.Begin("missing"); !errors.Is(err, ErrHandoffNotFound) {
		t.Errorf("Begin: expected ErrHandoffNotFound, got %v", err)
	}
	if err := registry.Complete("missing", nil); !errors.Is(err, ErrHandoffNotFound) {
		t.Errorf("Complete: expected ErrHandoffNotFound, got %v", err)
	}
	if err := registry.Fail("missing", nil); !errors.Is(err, ErrHandoffNotFound) {
		t.Errorf("Fail: expected ErrHandoffNotFound, got %v", err)
	}
}

func TestHandoffRegistry_ListFilter(t *testing.T) {
	registry, err := NewHandoffRegistry("")
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	// Distinct creation times keep List ordering deterministic
	first, _ := registry.Create("coordinator", "researcher", "task one", HandoffContext{})
	time.Sleep(5 * time.Millisecond)
	second, _ := registry.Create("coordinator", "writer", "task two", HandoffContext{})
	time.Sleep(5 * time.Millisecond)
	third, _ := registry.Create("researcher", "writer", "task three", HandoffContext{})

	if err := registry.Begin(second.ID); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := registry.Complete(third.ID, &HandoffResult{Response: "done"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	t.Run("All", func(t *testing.T) {
		all := registry.List(HandoffFilter{})
		if len(all) != 3 {
			t.Fatalf("Expected 3 records, got %d", len(all))
		}
		if all[0].ID != first.ID || all[1].ID != second.ID || all[2].ID != third.ID {
			t.Error("Expected records ordered oldest first")
		}
	})

	t.Run("ByStatus", func(t *testing.T) {
		pending := registry.List(HandoffFilter{Status: HandoffStatusPending})
		if len(pending) != 1 || pending[0].ID != first.ID {
			t.Errorf("Expected only the first record pending, got %d records", len(pending))
		}

		completed := registry.List(HandoffFilter{Status: HandoffStatusCompleted})
		if len(completed) != 1 || completed[0].ID != third.ID {
			t.Errorf("Expected only the third record completed, got %d records", len(completed))
		}
	})

	t.Run("ByAgent", func(t *testing.T) {
		// Matches sender or recipient
		researcher := registry.List(HandoffFilter{Agent: "researcher"})
		if len(researcher) != 2 {
			t.Fatalf("Expected 2 records involving researcher, got %d", len(researcher))
		}
		if researcher[0].ID != first.ID || researcher[1].ID != third.ID {
			t.Error("Expected researcher records in creation order")
		}
	})

	t.Run("ByStatusAndAgent", func(t *testing.T) {
		got := registry.List(HandoffFilter{Status: HandoffStatusInProgress, Agent: "writer"})
		if len(got) != 1 || got[0].ID != second.ID {
			t.Errorf("Expected only the second record, got %d records", len(got))
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		got := registry.List(HandoffFilter{Agent: "unknown"})
		if len(got) != 0 {
			t.Errorf("Expected no records, got %d", len(got))
		}
	})
}

func TestHandoffRegistry_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handoffs.json")

	registry, err := NewHandoffRegistry(path)
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	h1, err := registry.Create("coordinator", "researcher", "persisted task", HandoffContext{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	h2, err := registry.Create("coordinator", "writer", "second task", HandoffContext{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := registry.Complete(h1.ID, &HandoffResult{Response: "all done"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	// Reopen from disk
	reopened, err := NewHandoffRegistry(path)
	if err != nil {
		t.Fatalf("Failed to reopen registry: %v", err)
	}

	got, err := reopened.Get(h1.ID)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.Status != HandoffStatusCompleted {
		t.Errorf("Expected completed status after reopen, got %s", got.Status)
	}
	if got.Result == nil || got.Result.Response != "all done" {
		t.Errorf("Expected result to survive reopen, got %+v", got.Result)
	}

	got, err = reopened.Get(h2.ID)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.Status != HandoffStatusPending {
		t.Errorf("Expected pending status after reopen, got %s", got.Status)
	}
}

func TestHandoffRegistry_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")

	registry, err := NewHandoffRegistry(path)
	if err != nil {
		t.Fatalf("Expected missing file to be fine, got %v", err)
	}

	if got := registry.List(HandoffFilter{}); len(got) != 0 {
		t.Errorf("Expected empty registry, got %d records", len(got))
	}
}

func TestHandoffRegistry_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handoffs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("Failed to write corrupt file: %v", err)
	}

	_, err := NewHandoffRegistry(path)
	if err == nil {
		t.Fatal("Expected error for corrupt registry file")
	}
	if !strings.Contains(err.Error(), "loading handoff registry") {
		t.Errorf("Expected error naming the registry, got %v", err)
	}
}

func TestHandoff_WithRegistry_RecordsLifecycle(t *testing.T) {
	registry, err := NewHandoffRegistry("")
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	coordinator, err := New(Config{
		Model:     "test-model",
		AgentName: "coordinator",
		Provider:  NewMockLLM().WithFinalResponse("coordinator reply"),
	})
	if err != nil {
		t.Fatalf("Failed to create coordinator: %v", err)
	}

	researcher, err := New(Config{
		Model:     "test-model",
		AgentName: "researcher",
		Provider:  NewMockLLM().WithFinalResponse("research complete"),
	})
	if err != nil {
		t.Fatalf("Failed to create researcher: %v", err)
	}

	result, err := coordinator.Handoff(context.Background(), researcher, "investigate the issue",
		WithRegistry(registry),
	)
	if err != nil {
		t.Fatalf("Handoff failed: %v", err)
	}

	handoffID, ok := result.Metadata["handoff_id"].(string)
	if !ok || handoffID == "" {
		t.Fatal("Expected handoff_id in result metadata")
	}

	record, err := registry.Get(handoffID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Status != HandoffStatusCompleted {
		t.Errorf("Expected completed record, got %s", record.Status)
	}
	if record.From != "coordinator" || record.To != "researcher" {
		t.Errorf("Expected coordinator->researcher record, got %s->%s", record.From, record.To)
	}
	if record.Task != "investigate the issue" {
		t.Errorf("Expected original task in record, got %q", record.Task)
	}
	if record.Result == nil || record.Result.Response != "research complete" {
		t.Errorf("Expected delegated response in record, got %+v", record.Result)
	}
}

func TestHandoff_WithRegistry_RecordsFailure(t *testing.T) {
	registry, err := NewHandoffRegistry("")
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	coordinator, err := New(Config{
		Model:     "test-model",
		AgentName: "coordinator",
		Provider:  NewMockLLM().WithFinalResponse("unused"),
	})
	if err != nil {
		t.Fatalf("Failed to create coordinator: %v", err)
	}

	// No responses configured, so the delegated run fails
	broken, err := New(Config{
		Model:     "test-model",
		AgentName: "broken",
		Provider:  NewMockLLM(),
	})
	if err != nil {
		t.Fatalf("Failed to create agent: %v", err)
	}

	_, err = coordinator.Handoff(context.Background(), broken, "doomed task",
		WithRegistry(registry),
	)
	if !errors.Is(err, ErrHandoffExecutionFail) {
		t.Fatalf("Expected ErrHandoffExecutionFail, got %v", err)
	}

	records := registry.List(HandoffFilter{Status: HandoffStatusFailed})
	if len(records) != 1 {
		t.Fatalf("Expected 1 failed record, got %d", len(records))
	}
	if records[0].Error == "" {
		t.Error("Expected failure cause on the record")
	}
	if records[0].To != "broken" {
		t.Errorf("Expected record addressed to broken agent, got %s", records[0].To)
	}
}
