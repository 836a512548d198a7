package agentloom

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentloom/agentloom/internal/jsonfile"
)

// HandoffStatus tracks a delegation through its lifecycle.
type HandoffStatus string

const (
	HandoffStatusPending    HandoffStatus = "pending"
	HandoffStatusInProgress HandoffStatus = "in_progress"
	HandoffStatusCompleted  HandoffStatus = "completed"
	HandoffStatusFailed     HandoffStatus = "failed"
)

// Handoff is a record of one agent delegating a task to another.
// Records move through pending -> in_progress -> completed/failed.
type Handoff struct {
	ID          string         `json:"id"`
	From        string         `json:"from"`
	To          string         `json:"to"`
	Task        string         `json:"task"`
	Context     HandoffContext `json:"context,omitempty"`
	Status      HandoffStatus  `json:"status"`
	Result      *HandoffResult `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// HandoffFilter narrows a List call. Zero values match everything.
type HandoffFilter struct {
	// Status keeps only records in the given lifecycle state
	Status HandoffStatus
	// Agent keeps records where the agent is either sender or recipient
	Agent string
}

// ErrHandoffNotFound is returned when a handoff record doesn't exist
var ErrHandoffNotFound = errors.New("agentloom: handoff not found")

// HandoffRegistry tracks delegation records between agents.
// With a path it persists every mutation to a JSON file via an atomic
// rewrite, so an external process can safely read it at any time.
// With an empty path it is memory-only.
type HandoffRegistry struct {
	mu      sync.RWMutex
	path    string
	records map[string]Handoff
}

// registryFile is the on-disk shape of the registry.
type registryFile struct {
	Handoffs map[string]Handoff `json:"handoffs"`
}

// NewHandoffRegistry opens the registry at path, loading any existing
// records. A missing file is fine; a corrupt one is an error naming the
// path. Pass an empty path for a memory-only registry.
func NewHandoffRegistry(path string) (*HandoffRegistry, error) {
	r := &HandoffRegistry{
		path:    path,
		records: make(map[string]Handoff),
	}
	if path == "" {
		return r, nil
	}

	var file registryFile
	if err := jsonfile.Load(path, &file); err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("loading handoff registry: %w", err)
	}
	for id, h := range file.Handoffs {
		r.records[id] = h
	}
	return r, nil
}

// Create records a new pending handoff and returns it.
func (r *HandoffRegistry) Create(from, to, task string, hctx HandoffContext) (Handoff, error) {
	h := Handoff{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Task:      task,
		Context:   hctx,
		Status:    HandoffStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[h.ID] = h
	if err := r.persist(); err != nil {
		return Handoff{}, err
	}
	return h, nil
}

// Begin marks a handoff as in progress.
func (r *HandoffRegistry) Begin(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.records[id]
	if !ok {
		return ErrHandoffNotFound
	}
	h.Status = HandoffStatusInProgress
	r.records[id] = h
	return r.persist()
}

// Complete marks a handoff as completed and attaches its result.
func (r *HandoffRegistry) Complete(id string, result *HandoffResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.records[id]
	if !ok {
		return ErrHandoffNotFound
	}
	now := time.Now().UTC()
	h.Status = HandoffStatusCompleted
	h.Result = result
	h.CompletedAt = &now
	r.records[id] = h
	return r.persist()
}

// Fail marks a handoff as failed with the given cause.
func (r *HandoffRegistry) Fail(id string, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.records[id]
	if !ok {
		return ErrHandoffNotFound
	}
	now := time.Now().UTC()
	h.Status = HandoffStatusFailed
	if cause != nil {
		h.Error = cause.Error()
	}
	h.CompletedAt = &now
	r.records[id] = h
	return r.persist()
}

// Get returns the handoff with the given ID.
func (r *HandoffRegistry) Get(id string) (Handoff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.records[id]
	if !ok {
		return Handoff{}, ErrHandoffNotFound
	}
	return h, nil
}

// List returns records matching the filter, oldest first.
func (r *HandoffRegistry) List(filter HandoffFilter) []Handoff {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Handoff
	for _, h := range r.records {
		if filter.Status != "" && h.Status != filter.Status {
			continue
		}
		if filter.Agent != "" && h.From != filter.Agent && h.To != filter.Agent {
			continue
		}
		out = append(out, h)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// persist writes the registry to disk. Callers must hold the write lock.
func (r *HandoffRegistry) persist() error {
	if r.path == "" {
		return nil
	}
	file := registryFile{Handoffs: r.records}
	if err := jsonfile.Save(r.path, file); err != nil {
		return fmt.Errorf("saving handoff registry: %w", err)
	}
	return nil
}
