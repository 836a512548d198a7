package agentloom

import (
	"context"
	"errors"
	"testing"
	"time"
)

const convID = "conv-review-1"

func assertStoreNotConfigured(t *testing.T, err error) {
	t.Helper()
	const want = "agentloom: conversation store not configured"
	if err == nil || err.Error() != want {
		t.Errorf("expected %q error, got %v", want, err)
	}
}

// newConversationAgent builds an agent backed by a fresh in-memory store.
func newConversationAgent(t *testing.T) (*Agent, ConversationStore) {
	t.Helper()
	store := NewMemoryConversationStore()
	agent, err := New(Config{
		APIKey:            "test-key",
		Model:             "gpt-4o",
		ConversationStore: store,
	})
	if err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}
	return agent, store
}

func seedConversation(t *testing.T, store ConversationStore, conv Conversation) {
	t.Helper()
	if err := store.Save(context.Background(), conv); err != nil {
		t.Fatalf("failed to seed conversation: %v", err)
	}
}

func TestConversationMethodsRequireStore(t *testing.T) {
	agent, err := New(Config{
		APIKey: "test-key",
		Model:  "gpt-4o",
	})
	if err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}

	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"GetConversation", func() error {
			_, err := agent.GetConversation(ctx, convID)
			return err
		}},
		{"SaveConversation", func() error {
			return agent.SaveConversation(ctx, Conversation{ID: convID})
		}},
		{"AppendToConversation", func() error {
			turn := ConversationTurn{Role: "user", Content: "Which guides overlap?", Timestamp: time.Now()}
			return agent.AppendToConversation(ctx, convID, turn)
		}},
		{"DeleteConversation", func() error {
			return agent.DeleteConversation(ctx, convID)
		}},
		{"AddContext", func() error {
			return agent.AddContext(ctx, convID, "the deploy section was renamed")
		}},
		{"ClearConversation", func() error {
			return agent.ClearConversation(ctx, convID)
		}},
		{"ForkConversation", func() error {
			return agent.ForkConversation(ctx, convID, "conv-review-2", "retry with stricter matching")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertStoreNotConfigured(t, tt.fn())
		})
	}
}

func TestRunConversationRequiresStore(t *testing.T) {
	agent, err := New(Config{
		APIKey: "test-key",
		Model:  "gpt-4o",
	})
	if err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}

	_, err = agent.RunConversation(context.Background(), convID, "Which guides overlap?")
	assertStoreNotConfigured(t, err)
}

func TestGetConversationRoundTrip(t *testing.T) {
	agent, store := newConversationAgent(t)
	ctx := context.Background()

	seedConversation(t, store, Conversation{
		ID: convID,
		Turns: []ConversationTurn{
			{Role: "user", Content: "Which guides overlap?", Timestamp: time.Now()},
		},
	})

	loaded, err := agent.GetConversation(ctx, convID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}

	if loaded.ID != convID {
		t.Errorf("expected ID %s, got %s", convID, loaded.ID)
	}
	if len(loaded.Turns) != 1 {
		t.Errorf("expected 1 turn, got %d", len(loaded.Turns))
	}
}

func TestSaveConversationPersists(t *testing.T) {
	agent, store := newConversationAgent(t)
	ctx := context.Background()

	err := agent.SaveConversation(ctx, Conversation{
		ID: convID,
		Turns: []ConversationTurn{
			{Role: "user", Content: "Which guides overlap?", Timestamp: time.Now()},
		},
	})
	if err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	loaded, err := store.Load(ctx, convID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ID != convID {
		t.Errorf("expected ID %s, got %s", convID, loaded.ID)
	}
}

func TestAppendConversationTurn(t *testing.T) {
	agent, store := newConversationAgent(t)
	ctx := context.Background()

	seedConversation(t, store, Conversation{
		ID: convID,
		Turns: []ConversationTurn{
			{Role: "user", Content: "Which guides overlap?", Timestamp: time.Now()},
		},
	})

	err := agent.AppendToConversation(ctx, convID, ConversationTurn{
		Role:      "assistant",
		Content:   "Three overlap in the deploy section.",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("AppendToConversation failed: %v", err)
	}

	loaded, err := store.Load(ctx, convID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(loaded.Turns))
	}
	if loaded.Turns[1].Content != "Three overlap in the deploy section." {
		t.Errorf("unexpected appended turn content %q", loaded.Turns[1].Content)
	}
}

func TestDeleteConversationRemoves(t *testing.T) {
	agent, store := newConversationAgent(t)
	ctx := context.Background()

	seedConversation(t, store, Conversation{
		ID: convID,
		Turns: []ConversationTurn{
			{Role: "user", Content: "Which guides overlap?", Timestamp: time.Now()},
		},
	})

	if err := agent.DeleteConversation(ctx, convID); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}

	if _, err := store.Load(ctx, convID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestAddContextAppendsUserTurn(t *testing.T) {
	agent, store := newConversationAgent(t)
	ctx := context.Background()

	seedConversation(t, store, Conversation{
		ID: convID,
		Turns: []ConversationTurn{
			{Role: "user", Content: "Which guides overlap?", Timestamp: time.Now()},
		},
	})

	err := agent.AddContext(ctx, convID, "Note: the deploy section was renamed to operations last week")
	if err != nil {
		t.Fatalf("AddContext failed: %v", err)
	}

	loaded, err := store.Load(ctx, convID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(loaded.Turns))
	}
	if loaded.Turns[1].Role != "user" {
		t.Errorf("expected context turn to use the user role, got %s", loaded.Turns[1].Role)
	}
	if loaded.Turns[1].Content != "Note: the deploy section was renamed to operations last week" {
		t.Errorf("unexpected context content %q", loaded.Turns[1].Content)
	}
}

func TestClearConversationKeepsMetadata(t *testing.T) {
	agent, store := newConversationAgent(t)
	ctx := context.Background()

	seedConversation(t, store, Conversation{
		ID:      convID,
		AgentID: "curator-1",
		Turns: []ConversationTurn{
			{Role: "user", Content: "Which guides overlap?", Timestamp: time.Now()},
			{Role: "assistant", Content: "Three overlap in the deploy section.", Timestamp: time.Now()},
		},
		Metadata: map[string]any{
			"workspace": "handbook",
		},
	})

	if err := agent.ClearConversation(ctx, convID); err != nil {
		t.Fatalf("ClearConversation failed: %v", err)
	}

	loaded, err := store.Load(ctx, convID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Turns) != 0 {
		t.Errorf("expected no turns after clear, got %d", len(loaded.Turns))
	}
	if loaded.Metadata["workspace"] != "handbook" {
		t.Error("expected metadata to survive a clear")
	}
}

func TestForkConversationCopiesHistory(t *testing.T) {
	agent, store := newConversationAgent(t)
	ctx := context.Background()

	seedConversation(t, store, Conversation{
		ID:      convID,
		AgentID: "curator-1",
		Turns: []ConversationTurn{
			{Role: "user", Content: "Which guides overlap?", Timestamp: time.Now()},
			{Role: "assistant", Content: "Three overlap in the deploy section.", Timestamp: time.Now()},
		},
		Metadata: map[string]any{
			"workspace": "handbook",
		},
	})

	err := agent.ForkConversation(ctx, convID, "conv-review-2", "What if we merged them instead of archiving?")
	if err != nil {
		t.Fatalf("ForkConversation failed: %v", err)
	}

	forked, err := store.Load(ctx, "conv-review-2")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(forked.Turns) != 3 {
		t.Fatalf("expected 3 turns in fork, got %d", len(forked.Turns))
	}
	if forked.Turns[2].Content != "What if we merged them instead of archiving?" {
		t.Errorf("unexpected fork turn content %q", forked.Turns[2].Content)
	}
	if forked.Metadata["workspace"] != "handbook" {
		t.Error("expected metadata to be copied to the fork")
	}
	if forked.AgentID != "curator-1" {
		t.Errorf("expected AgentID curator-1, got %s", forked.AgentID)
	}

	original, err := store.Load(ctx, convID)
	if err != nil {
		t.Fatalf("Load original failed: %v", err)
	}
	if len(original.Turns) != 2 {
		t.Errorf("expected original untouched with 2 turns, got %d", len(original.Turns))
	}
}

func TestRunConversationUnknownID(t *testing.T) {
	agent, err := New(Config{
		Model:             "gpt-4o",
		Provider:          NewMockLLM().WithFinalResponse("hi"),
		ConversationStore: NewMemoryConversationStore(),
	})
	if err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}

	_, err = agent.RunConversation(context.Background(), "missing", "Which guides overlap?")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestRunConversationPersistsTurns(t *testing.T) {
	store := NewMemoryConversationStore()
	mock := NewMockLLM().WithFinalResponse("The deploy and release guides cover the same rollout steps.")

	agent, err := New(Config{
		Model:             "gpt-4o",
		Provider:          mock,
		StreamResponses:   false,
		ConversationStore: store,
		Logging:           &LoggingConfig{LogPrompts: false},
	})
	if err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}

	ctx := context.Background()
	seedConversation(t, store, Conversation{
		ID: convID,
		Turns: []ConversationTurn{
			{Role: "user", Content: "Start a review of the handbook corpus.", Timestamp: time.Now()},
			{Role: "assistant", Content: "Review started.", Timestamp: time.Now()},
		},
	})

	events, err := agent.RunConversation(ctx, convID, "Which guides overlap?")
	if err != nil {
		t.Fatalf("RunConversation failed: %v", err)
	}

	var finalOutput string
	for event := range events {
		if event.Type == EventTypeFinalOutput {
			if response, ok := event.Data["response"].(string); ok {
				finalOutput = response
			}
		}
	}

	if finalOutput != "The deploy and release guides cover the same rollout steps." {
		t.Errorf("unexpected final output %q", finalOutput)
	}

	// Both the user message and the assistant reply are persisted by the
	// time the event stream closes.
	loaded, err := store.Load(ctx, convID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(loaded.Turns))
	}
	if loaded.Turns[2].Role != "user" || loaded.Turns[2].Content != "Which guides overlap?" {
		t.Errorf("unexpected user turn: %+v", loaded.Turns[2])
	}
	if loaded.Turns[3].Role != "assistant" || loaded.Turns[3].Content != "The deploy and release guides cover the same rollout steps." {
		t.Errorf("unexpected assistant turn: %+v", loaded.Turns[3])
	}
}
