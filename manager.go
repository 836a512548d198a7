package agentloom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/agentloom/agentloom/providers"
)

// Manager coordinates a team of worker agents. The manager agent plans
// the work, tasks fan out to workers, and the manager synthesizes the
// results into a final report.
type Manager struct {
	manager *Agent
	workers map[string]*managerWorker
	order   []string
	opts    managerOptions
}

type managerWorker struct {
	agent       *Agent
	description string
}

type managerOptions struct {
	maxConcurrent int  // Bound on concurrently running workers
	sequential    bool // Run tasks strictly in plan order
	failFast      bool // Cancel remaining tasks on the first failure
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerOptions)

// WithMaxConcurrent bounds how many workers run at the same time.
// Zero means no bound.
func WithMaxConcurrent(n int) ManagerOption {
	return func(o *managerOptions) {
		o.maxConcurrent = n
	}
}

// WithSequential runs tasks one at a time in plan order.
func WithSequential() ManagerOption {
	return func(o *managerOptions) {
		o.sequential = true
	}
}

// WithFailFast cancels the remaining tasks when one fails. Without it a
// failed task records its error and the run continues, so the synthesis
// step can account for the gap.
func WithFailFast() ManagerOption {
	return func(o *managerOptions) {
		o.failFast = true
	}
}

// Task is one unit of planned work routed to a worker.
type Task struct {
	ID          string
	Description string
	Worker      string
	Metadata    map[string]any
}

// TaskResult is the outcome of one task.
type TaskResult struct {
	TaskID   string
	Worker   string
	Response string
	Usage    providers.TokenUsage
	Err      error
}

// ManagerReport is the outcome of a full manager run.
type ManagerReport struct {
	Plan      []Task
	Results   []TaskResult
	Synthesis string
	Usage     providers.TokenUsage
}

var (
	ErrManagerNilAgent  = errors.New("agentloom: manager agent cannot be nil")
	ErrManagerNoWorkers = errors.New("agentloom: manager has no workers")
	ErrWorkerExists     = errors.New("agentloom: worker already registered")
	ErrUnknownWorker    = errors.New("agentloom: unknown worker")
	ErrObjectiveEmpty   = errors.New("agentloom: objective cannot be empty")
)

// NewManager creates a manager around the given planning agent.
func NewManager(manager *Agent, opts ...ManagerOption) (*Manager, error) {
	if manager == nil {
		return nil, ErrManagerNilAgent
	}

	options := managerOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return &Manager{
		manager: manager,
		workers: make(map[string]*managerWorker),
		opts:    options,
	}, nil
}

// AddWorker registers a worker agent under a name the planner can route
// tasks to. The description tells the planner what the worker is good at.
func (m *Manager) AddWorker(name string, agent *Agent, description string) error {
	if name == "" {
		return errors.New("agentloom: worker name cannot be empty")
	}
	if agent == nil {
		return fmt.Errorf("agentloom: worker %q agent cannot be nil", name)
	}
	if _, exists := m.workers[name]; exists {
		return fmt.Errorf("%w: %s", ErrWorkerExists, name)
	}

	m.workers[name] = &managerWorker{agent: agent, description: description}
	m.order = append(m.order, name)
	return nil
}

// Run plans the objective, executes the tasks and synthesizes a report.
//
// The manager agent first decomposes the objective into tasks assigned
// to workers. Tasks then run concurrently (bounded by WithMaxConcurrent)
// or in order under WithSequential. Results are gathered in task order
// regardless of completion order. Finally the manager agent writes the
// synthesis over all results, including any failures.
func (m *Manager) Run(ctx context.Context, objective string) (*ManagerReport, error) {
	if objective == "" {
		return nil, ErrObjectiveEmpty
	}
	if len(m.workers) == 0 {
		return nil, ErrManagerNoWorkers
	}

	report := &ManagerReport{}

	// Plan
	planText, planUsage, err := collectRun(ctx, m.manager, m.planPrompt(objective))
	if err != nil {
		return nil, fmt.Errorf("agentloom: planning failed: %w", err)
	}
	report.Usage.Add(planUsage)
	report.Plan = m.parsePlan(planText, objective)

	m.manager.logger.Debug("manager plan ready",
		"objective", objective,
		"tasks", len(report.Plan))

	// Execute
	results, err := m.runTasks(ctx, report.Plan)
	if err != nil {
		return nil, err
	}
	report.Results = results
	for _, r := range results {
		report.Usage.Add(r.Usage)
	}

	// Synthesize
	synthesis, synthUsage, err := collectRun(ctx, m.manager, m.synthesisPrompt(objective, results))
	if err != nil {
		return nil, fmt.Errorf("agentloom: synthesis failed: %w", err)
	}
	report.Usage.Add(synthUsage)
	report.Synthesis = synthesis

	return report, nil
}

// runTasks executes the plan and returns results in task order.
func (m *Manager) runTasks(ctx context.Context, plan []Task) ([]TaskResult, error) {
	results := make([]TaskResult, len(plan))

	if m.opts.sequential {
		for i, task := range plan {
			results[i] = m.runTask(ctx, task)
			if m.opts.failFast && results[i].Err != nil {
				return nil, fmt.Errorf("agentloom: task %s failed: %w", task.ID, results[i].Err)
			}
		}
		return results, nil
	}

	g, runCtx := errgroup.WithContext(ctx)
	if m.opts.maxConcurrent > 0 {
		g.SetLimit(m.opts.maxConcurrent)
	}

	for i, task := range plan {
		g.Go(func() error {
			results[i] = m.runTask(runCtx, task)
			if m.opts.failFast && results[i].Err != nil {
				return fmt.Errorf("agentloom: task %s failed: %w", task.ID, results[i].Err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runTask routes one task to its worker. Errors land in the result so
// the run can continue without fail-fast.
func (m *Manager) runTask(ctx context.Context, task Task) TaskResult {
	res := TaskResult{TaskID: task.ID, Worker: task.Worker}

	w, ok := m.workers[task.Worker]
	if !ok {
		res.Err = fmt.Errorf("%w: %s", ErrUnknownWorker, task.Worker)
		return res
	}

	m.manager.logger.Debug("dispatching task", "task", task.ID, "worker", task.Worker)

	response, usage, err := collectRun(ctx, w.agent, task.Description)
	if err != nil {
		res.Err = err
		return res
	}
	res.Response = response
	res.Usage = usage
	return res
}

func (m *Manager) planPrompt(objective string) string {
	var roster strings.Builder
	for _, name := range m.order {
		fmt.Fprintf(&roster, "- %s: %s\n", name, m.workers[name].description)
	}

	return fmt.Sprintf(`Break this objective into a short list of tasks for your workers.

Objective: %s

Workers:
%s
Respond with only a JSON array, one object per task:
[{"id": "task-1", "description": "what to do", "worker": "worker-name"}]

Assign each task to the best-suited worker. Keep the list minimal.`, objective, roster.String())
}

func (m *Manager) synthesisPrompt(objective string, results []TaskResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You coordinated workers on this objective: %s\n\nTask results:\n", objective)
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(&b, "[%s] %s: ERROR: %v\n", r.TaskID, r.Worker, r.Err)
		} else {
			fmt.Fprintf(&b, "[%s] %s: %s\n", r.TaskID, r.Worker, r.Response)
		}
	}
	b.WriteString("\nWrite the final deliverable for the objective, synthesizing these results. Note any gaps caused by failed tasks.")
	return b.String()
}

// planTask is the JSON shape the planner is asked to produce.
type planTask struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Worker      string `json:"worker"`
}

// parsePlan decodes the planner's response. Planners don't always obey
// the format, so parsing is tolerant: markdown fences are stripped, and
// a response with no usable tasks falls back to a single task holding
// the whole objective.
func (m *Manager) parsePlan(raw, objective string) []Task {
	payload := extractJSONArray(raw)

	var decoded []planTask
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
			m.manager.logger.Debug("plan was not valid JSON, using fallback", "error", err)
			decoded = nil
		}
	}

	var plan []Task
	for _, t := range decoded {
		if strings.TrimSpace(t.Description) == "" {
			continue
		}
		plan = append(plan, Task{ID: t.ID, Description: t.Description, Worker: t.Worker})
	}

	if len(plan) == 0 {
		plan = []Task{{Description: objective}}
	}

	for i := range plan {
		if plan[i].ID == "" {
			plan[i].ID = fmt.Sprintf("task-%d", i+1)
		}
		if plan[i].Worker == "" {
			plan[i].Worker = m.order[i%len(m.order)]
		}
	}
	return plan
}

// extractJSONArray pulls the outermost JSON array out of text that may
// wrap it in markdown fences or prose.
func extractJSONArray(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// collectRun executes an agent run and gathers its final response and
// token usage from the event stream.
func collectRun(ctx context.Context, agent *Agent, message string) (string, providers.TokenUsage, error) {
	response, _, _, usage, err := executeHandoff(ctx, agent, message, handoffOptions{})
	return response, usage, err
}

