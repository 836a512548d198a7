package agentloom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// CollaborationSession runs a roundtable discussion between agents. Unlike a
// handoff there is no hierarchy: peers take turns contributing to a shared
// transcript while the facilitator synthesizes each round and produces the
// final answer.
type CollaborationSession struct {
	facilitator *Agent
	peers       []*Agent
	options     collaborationOptions
	mu          sync.RWMutex
}

type collaborationOptions struct {
	maxRounds      int
	roundTimeout   time.Duration
	captureHistory bool
}

// CollaborationOption configures a collaboration session.
type CollaborationOption func(*collaborationOptions)

// WithMaxRounds caps the number of discussion rounds. Every peer gets one
// turn per round.
func WithMaxRounds(max int) CollaborationOption {
	return func(o *collaborationOptions) {
		o.maxRounds = max
	}
}

// WithRoundTimeout bounds each round, contributions and synthesis included.
func WithRoundTimeout(timeout time.Duration) CollaborationOption {
	return func(o *collaborationOptions) {
		o.roundTimeout = timeout
	}
}

// WithCaptureHistory controls whether each round's contributions feed into
// the transcript the next round sees. Off, peers only ever see the topic.
func WithCaptureHistory(capture bool) CollaborationOption {
	return func(o *collaborationOptions) {
		o.captureHistory = capture
	}
}

// CollaborationResult is the outcome of a collaborative discussion.
type CollaborationResult struct {
	FinalResponse string
	Rounds        []CollaborationRound
	Summary       string
	Participants  []string
	Metadata      map[string]any
}

// CollaborationRound holds one round of discussion. Number is 1-indexed.
type CollaborationRound struct {
	Number        int
	Contributions []CollaborationContribution
	Synthesis     string
}

// CollaborationContribution is a single agent's input in a round.
type CollaborationContribution struct {
	Agent   string
	Content string
	Time    time.Time
}

var (
	ErrCollaborationNoFacilitator = errors.New("agentloom: collaboration requires a facilitator agent")
	ErrCollaborationNoPeers       = errors.New("agentloom: collaboration requires at least one peer agent")
	ErrCollaborationTopicEmpty    = errors.New("agentloom: collaboration topic cannot be empty")
	ErrCollaborationFailed        = errors.New("agentloom: collaboration failed")
)

// NewCollaborationSession creates a session facilitated by the first agent,
// with the rest contributing as peers.
//
// Example:
//
//	session := agentloom.NewCollaborationSession(
//	    librarian,
//	    indexer, curator, reviewer,
//	)
//
//	result, err := session.Discuss(ctx, "How should the guides section be reorganized?")
func NewCollaborationSession(facilitator *Agent, peers ...*Agent) *CollaborationSession {
	return &CollaborationSession{
		facilitator: facilitator,
		peers:       peers,
		options: collaborationOptions{
			maxRounds:      3,
			roundTimeout:   2 * time.Minute,
			captureHistory: true,
		},
	}
}

// Configure applies options to the session and returns it for chaining.
func (cs *CollaborationSession) Configure(opts ...CollaborationOption) *CollaborationSession {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for _, opt := range opts {
		opt(&cs.options)
	}
	return cs
}

// Discuss runs a collaborative discussion on a topic. Options given here
// apply to this discussion only, layered over the session configuration.
//
// Example:
//
//	result, err := session.Discuss(ctx,
//	    "Which taxonomy should the reference section use?",
//	    agentloom.WithMaxRounds(5),
//	)
func (cs *CollaborationSession) Discuss(ctx context.Context, topic string, opts ...CollaborationOption) (*CollaborationResult, error) {
	if cs.facilitator == nil {
		return nil, ErrCollaborationNoFacilitator
	}
	if len(cs.peers) == 0 {
		return nil, ErrCollaborationNoPeers
	}
	if topic == "" {
		return nil, ErrCollaborationTopicEmpty
	}

	cs.mu.RLock()
	options := cs.options
	cs.mu.RUnlock()
	for _, opt := range opts {
		opt(&options)
	}

	// Prefer the tracer flowing in from a calling agent so nested runs
	// land in its trace.
	tracer := GetTracer(ctx)
	if tracer == nil {
		tracer = cs.facilitator.tracer
	}

	ctx, end := startSpan(ctx, tracer, "collaboration")
	defer end()
	setSpanAttrs(ctx, tracer, map[string]any{
		"topic":             topic,
		"participant_count": len(cs.peers) + 1, // facilitator included
		"max_rounds":        options.maxRounds,
		"round_timeout":     options.roundTimeout.String(),
		"capture_history":   options.captureHistory,
	})

	result, err := cs.executeCollaboration(ctx, topic, options, tracer)
	if err != nil {
		setSpanAttrs(ctx, tracer, map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("%w: %v", ErrCollaborationFailed, err)
	}

	setSpanAttrs(ctx, tracer, map[string]any{
		"rounds_completed": len(result.Rounds),
		"response_length":  len(result.FinalResponse),
	})
	return result, nil
}

// executeCollaboration drives the rounds and the final synthesis.
func (cs *CollaborationSession) executeCollaboration(
	ctx context.Context,
	topic string,
	opts collaborationOptions,
	tracer Tracer,
) (*CollaborationResult, error) {
	result := &CollaborationResult{
		Rounds:       make([]CollaborationRound, 0, opts.maxRounds),
		Participants: cs.getParticipantNames(),
		Metadata:     make(map[string]any),
	}

	transcript := []string{"Topic: " + topic}

	for roundNum := 1; roundNum <= opts.maxRounds; roundNum++ {
		round, more, err := cs.executeRound(ctx, roundNum, transcript, opts, tracer)
		if err != nil {
			// A failed round ends the discussion early, but whatever was
			// said before it still reaches the final synthesis.
			cs.facilitator.logger.Warn("collaboration round failed",
				"round", roundNum, "error", err)
			break
		}
		result.Rounds = append(result.Rounds, round)

		if opts.captureHistory {
			transcript = append(transcript, round.transcriptLines()...)
		}
		if !more {
			break
		}
	}

	finalResponse, err := cs.generateFinalSynthesis(ctx, topic, result.Rounds, tracer)
	if err != nil {
		return nil, err
	}

	result.FinalResponse = finalResponse
	result.Summary = cs.generateSummary(result)
	return result, nil
}

// executeRound gives every peer a turn and has the facilitator synthesize.
// The bool result reports whether the facilitator wants another round.
func (cs *CollaborationSession) executeRound(
	ctx context.Context,
	roundNum int,
	transcript []string,
	opts collaborationOptions,
	tracer Tracer,
) (CollaborationRound, bool, error) {
	ctx, end := startSpan(ctx, tracer, fmt.Sprintf("collaboration_round_%d", roundNum))
	defer end()
	setSpanAttrs(ctx, tracer, map[string]any{"round_number": roundNum})

	if opts.roundTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.roundTimeout)
		defer cancel()
	}

	round := CollaborationRound{
		Number:        roundNum,
		Contributions: make([]CollaborationContribution, 0, len(cs.peers)),
	}

	// Later peers see what earlier peers said this round. A peer that
	// fails or stays silent is skipped, not fatal.
	for i, peer := range cs.peers {
		response, err := cs.peerContribution(ctx, i, peer, cs.buildPeerPrompt(roundNum, transcript), tracer)
		if err != nil {
			cs.facilitator.logger.Debug("peer contribution failed",
				"peer", cs.getPeerName(i), "round", roundNum, "error", err)
			continue
		}
		if response == "" {
			continue
		}

		name := cs.getPeerName(i)
		round.Contributions = append(round.Contributions, CollaborationContribution{
			Agent:   name,
			Content: response,
			Time:    time.Now(),
		})
		transcript = append(transcript, name+": "+response)
	}

	synthesis, more, err := cs.facilitatorSynthesis(ctx, roundNum, round.Contributions, tracer)
	if err != nil {
		return round, false, err
	}

	round.Synthesis = synthesis
	return round, more, nil
}

// transcriptLines renders the round as shared-transcript entries.
func (r CollaborationRound) transcriptLines() []string {
	lines := make([]string, 0, len(r.Contributions)+1)
	for _, c := range r.Contributions {
		lines = append(lines, c.Agent+": "+c.Content)
	}
	if r.Synthesis != "" {
		lines = append(lines, "Synthesis: "+r.Synthesis)
	}
	return lines
}

// peerContribution runs one peer under its own span and returns its response.
func (cs *CollaborationSession) peerContribution(
	ctx context.Context,
	index int,
	peer *Agent,
	prompt string,
	tracer Tracer,
) (string, error) {
	ctx, end := startSpan(ctx, tracer, fmt.Sprintf("peer_%d_contribution", index+1))
	defer end()

	response, _, err := collectRun(ctx, delegateWithTracer(peer, tracer), prompt)
	return response, err
}

// facilitatorRun executes the facilitator under a named span.
func (cs *CollaborationSession) facilitatorRun(ctx context.Context, tracer Tracer, span, prompt string) (string, error) {
	ctx, end := startSpan(ctx, tracer, span)
	defer end()

	response, _, err := collectRun(ctx, delegateWithTracer(cs.facilitator, tracer), prompt)
	return response, err
}

// buildPeerPrompt assembles the prompt a peer sees for its turn.
func (cs *CollaborationSession) buildPeerPrompt(roundNum int, transcript []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are participating in a collaborative discussion (Round %d).\n\n", roundNum)

	if len(transcript) > 0 {
		b.WriteString("Discussion so far:\n")
		for _, line := range transcript {
			fmt.Fprintf(&b, "- %s\n", line)
		}
		b.WriteString("\n")
	}

	b.WriteString("Please share your perspective, ideas, or questions. Be concise and constructive.")
	return b.String()
}

// facilitatorSynthesis condenses the round and reads the facilitator's
// verdict on whether the discussion should continue. Saying CONCLUDE at the
// start of the response stops it.
func (cs *CollaborationSession) facilitatorSynthesis(
	ctx context.Context,
	roundNum int,
	contributions []CollaborationContribution,
	tracer Tracer,
) (string, bool, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are facilitating a collaborative discussion (Round %d).\n\n", roundNum)
	b.WriteString("Contributions this round:\n")
	for _, contrib := range contributions {
		fmt.Fprintf(&b, "- %s: %s\n", contrib.Agent, contrib.Content)
	}
	b.WriteString("\nSynthesize the key insights and decide if we need another round. ")
	b.WriteString("If the discussion has converged or the topic is well-explored, say 'CONCLUDE' at the start of your response.")

	synthesis, err := cs.facilitatorRun(ctx, tracer, "facilitator_synthesis", b.String())
	if err != nil {
		return "", false, err
	}
	if synthesis == "" {
		return "", false, fmt.Errorf("facilitator failed to synthesize round %d", roundNum)
	}

	if rest, ok := strings.CutPrefix(synthesis, "CONCLUDE"); ok {
		return strings.TrimLeft(rest, ": \n"), false, nil
	}
	return synthesis, true, nil
}

// generateFinalSynthesis folds the whole discussion into one answer.
func (cs *CollaborationSession) generateFinalSynthesis(
	ctx context.Context,
	topic string,
	rounds []CollaborationRound,
	tracer Tracer,
) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on the following collaborative discussion about '%s', provide a final synthesized answer.\n\n", topic)

	for _, round := range rounds {
		fmt.Fprintf(&b, "Round %d:\n", round.Number)
		for _, contrib := range round.Contributions {
			fmt.Fprintf(&b, "- %s: %s\n", contrib.Agent, contrib.Content)
		}
		if round.Synthesis != "" {
			fmt.Fprintf(&b, "Synthesis: %s\n", round.Synthesis)
		}
		b.WriteString("\n")
	}

	b.WriteString("Provide a clear, comprehensive final answer that incorporates the best insights from all participants.")

	response, err := cs.facilitatorRun(ctx, tracer, "final_synthesis", b.String())
	if err != nil {
		return "", err
	}
	if response == "" {
		return "", errors.New("facilitator failed to generate final synthesis")
	}
	return response, nil
}

// generateSummary produces the one-line accounting of the discussion.
func (cs *CollaborationSession) generateSummary(result *CollaborationResult) string {
	totalContributions := 0
	for _, round := range result.Rounds {
		totalContributions += len(round.Contributions)
	}

	return fmt.Sprintf("Collaboration completed in %d round(s) with %d total contribution(s) from %d participant(s)",
		len(result.Rounds), totalContributions, len(result.Participants))
}

// getParticipantNames lists the facilitator first, then the peers.
func (cs *CollaborationSession) getParticipantNames() []string {
	name := cs.facilitator.Name()
	if name == "" {
		name = "facilitator"
	}

	names := append(make([]string, 0, len(cs.peers)+1), name)
	for i := range cs.peers {
		names = append(names, cs.getPeerName(i))
	}
	return names
}

// getPeerName returns the peer's configured name, or a stable placeholder
// when it has none.
func (cs *CollaborationSession) getPeerName(index int) string {
	if index < len(cs.peers) {
		if name := cs.peers[index].Name(); name != "" {
			return name
		}
	}
	return fmt.Sprintf("peer_%d", index)
}

// AsTool wraps the session as a Tool so an agent can convene the discussion
// through tool calling, with the topic supplied at runtime.
//
// Example:
//
//	session := agentloom.NewCollaborationSession(librarian, indexer, curator)
//
//	coordinator.AddTool(session.AsTool(
//	    "curation_roundtable",
//	    "Convene the curation team to discuss a corpus question",
//	))
//
// The LLM decides when to collaborate and what to put on the table:
//
//	coordinator.Run(ctx, "The guides section needs restructuring...")
//	// LLM calls: curation_roundtable(topic: "How should the guides section be reorganized?")
func (cs *CollaborationSession) AsTool(name, description string, opts ...CollaborationOption) Tool {
	return NewTool(name).
		WithDescription(description).
		WithParameter("topic", String().Required().WithDescription("The topic or question for the collaborative discussion")).
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			topic, ok := args["topic"].(string)
			if !ok || topic == "" {
				return nil, ErrCollaborationTopicEmpty
			}

			result, err := cs.Discuss(ctx, topic, opts...)
			if err != nil {
				return nil, err
			}

			return map[string]any{
				"final_response": result.FinalResponse,
				"summary":        result.Summary,
				"rounds":         len(result.Rounds),
				"participants":   result.Participants,
			}, nil
		}).
		Build()
}
