// The Decision Gateway packages warehouse state into oracle requests,
// validates the returned recommendation against live state, and falls
// back to the deterministic greedy policy whenever the oracle is slow,
// malformed, stale, or simply absent. The oracle is strictly advisory:
// nothing here can block a tick indefinitely or fail one outright.

package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warehouse-sim/warehouse-sim/sim/oracle"
)

// DefaultOracleTimeout bounds a single oracle call.
const DefaultOracleTimeout = 3 * time.Second

// ActionAssign is the one action kind accepted for assignment escalations.
const ActionAssign = "assign"

// freeFormKinds are the action kinds accepted from operator-issued
// queries, matching the command surface the engine can execute.
var freeFormKinds = map[string]bool{
	ActionAssign:   true,
	"restock":      true,
	"pick":         true,
	"relocate":     true,
	"cancel_order": true,
}

// AgentReply is the outcome of a free-form operator query. Degraded is
// set when the oracle could not be used and the reply carries no action.
type AgentReply struct {
	Action   *oracle.Action `json:"action,omitempty"`
	Degraded bool           `json:"degraded"`
	Reason   string         `json:"reason,omitempty"`
}

// DecisionGateway mediates between the Coordinator and the oracle Client.
// At most one oracle call is outstanding at a time; a second escalation
// arriving while one is in flight takes the fallback path immediately.
type DecisionGateway struct {
	store   *Store
	client  oracle.Client
	timeout time.Duration
	metrics *Metrics
	slot    chan struct{}
}

// NewDecisionGateway creates a DecisionGateway. client may be nil, in
// which case every escalation resolves by fallback. metrics may be nil.
func NewDecisionGateway(store *Store, client oracle.Client, timeout time.Duration, metrics *Metrics) *DecisionGateway {
	if store == nil {
		panic("NewDecisionGateway: store must not be nil")
	}
	if timeout <= 0 {
		timeout = DefaultOracleTimeout
	}
	g := &DecisionGateway{store: store, client: client, timeout: timeout, metrics: metrics, slot: make(chan struct{}, 1)}
	g.slot <- struct{}{}
	return g
}

// ResolveAssignment escalates an ambiguous assignment plan to the oracle
// and returns the candidate to commit. The recommendation must name a
// candidate pairing whose task and AGV are still in compatible states at
// validation time; anything else (timeout, malformed response, stale or
// unknown targets, busy gateway) resolves to the plan's greedy choice.
func (g *DecisionGateway) ResolveAssignment(ctx context.Context, tick int64, plan *Plan) Candidate {
	if plan == nil || !plan.Ambiguous {
		panic("ResolveAssignment: plan must be an ambiguous plan")
	}
	action, err := g.consult(ctx, oracle.Request{
		Ambiguity:  fmt.Sprintf("tick %d: %d equally-ranked task/AGV pairings contend for the same AGVs", tick, len(plan.Candidates)),
		State:      g.store.Snapshot(tick),
		Candidates: candidateActions(plan.Candidates),
	})
	if err != nil {
		g.fallback(tick, err)
		return plan.Choice
	}
	chosen, err := g.matchCandidate(action, plan.Candidates)
	if err != nil {
		g.fallback(tick, err)
		return plan.Choice
	}
	logrus.Infof("oracle resolved assignment at tick %d: task %s -> AGV %s (%s)",
		tick, chosen.Task.ID, chosen.AGV.ID, action.Rationale)
	return chosen
}

// AskAgent routes a free-form operator query to the oracle with a
// synthetic snapshot. Oracle failure never surfaces as an error: the
// reply is flagged degraded and the caller reports best-effort state.
func (g *DecisionGateway) AskAgent(ctx context.Context, tick int64, question string) AgentReply {
	action, err := g.consult(ctx, oracle.Request{
		Question: question,
		State:    g.store.Snapshot(tick),
	})
	if err != nil {
		g.fallback(tick, err)
		return AgentReply{Degraded: true, Reason: err.Error()}
	}
	if err := g.validateFreeForm(action); err != nil {
		g.fallback(tick, err)
		return AgentReply{Degraded: true, Reason: err.Error()}
	}
	return AgentReply{Action: &action}
}

// consult performs one bounded oracle call, holding the single
// outstanding-call slot for its duration.
func (g *DecisionGateway) consult(ctx context.Context, req oracle.Request) (oracle.Action, error) {
	if g.client == nil {
		return oracle.Action{}, fmt.Errorf("no oracle configured: %w", ErrOracleUnavailable)
	}
	select {
	case <-g.slot:
	default:
		return oracle.Action{}, fmt.Errorf("escalation already in flight: %w", ErrOracleUnavailable)
	}
	defer func() { g.slot <- struct{}{} }()

	if g.metrics != nil {
		g.metrics.OracleCalls.Inc()
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	action, err := g.client.Decide(callCtx, req)
	if err != nil {
		return oracle.Action{}, fmt.Errorf("%v: %w", err, ErrOracleUnavailable)
	}
	return action, nil
}

// matchCandidate validates an assignment recommendation: the action must
// be kind "assign" with target_ids [task, agv] naming one of the offered
// candidates, and both entities must still be assignable right now.
func (g *DecisionGateway) matchCandidate(action oracle.Action, candidates []Candidate) (Candidate, error) {
	if action.Kind != ActionAssign {
		return Candidate{}, fmt.Errorf("unexpected action kind %q: %w", action.Kind, ErrOracleUnavailable)
	}
	if len(action.TargetIDs) != 2 {
		return Candidate{}, fmt.Errorf("assign action needs [task, agv] targets: %w", ErrOracleUnavailable)
	}
	taskID, agvID := action.TargetIDs[0], action.TargetIDs[1]
	for _, c := range candidates {
		if c.Task.ID != taskID || c.AGV.ID != agvID {
			continue
		}
		// Stale-recommendation check: re-read both records.
		t, err := g.store.TaskByID(taskID)
		if err != nil || t.State != TaskPending || t.Version != c.Task.Version {
			return Candidate{}, fmt.Errorf("task %s moved since snapshot: %w", taskID, ErrConflict)
		}
		a, err := g.store.AGVByID(agvID)
		if err != nil || a.Status != AGVIdle || a.Version != c.AGV.Version {
			return Candidate{}, fmt.Errorf("agv %s moved since snapshot: %w", agvID, ErrConflict)
		}
		return c, nil
	}
	return Candidate{}, fmt.Errorf("recommendation %s/%s not among candidates: %w", taskID, agvID, ErrOracleUnavailable)
}

// validateFreeForm checks an operator-query action: known kind, and every
// target id must name an entity that still exists.
func (g *DecisionGateway) validateFreeForm(action oracle.Action) error {
	if !freeFormKinds[action.Kind] {
		return fmt.Errorf("unknown action kind %q: %w", action.Kind, ErrOracleUnavailable)
	}
	for _, id := range action.TargetIDs {
		if !g.entityExists(id) {
			return fmt.Errorf("target %q does not exist: %w", id, ErrOracleUnavailable)
		}
	}
	return nil
}

func (g *DecisionGateway) entityExists(id string) bool {
	if _, err := g.store.ProductBySKU(id); err == nil {
		return true
	}
	if _, err := g.store.AGVByID(id); err == nil {
		return true
	}
	if _, err := g.store.TaskByID(id); err == nil {
		return true
	}
	if _, err := g.store.OrderByID(id); err == nil {
		return true
	}
	return false
}

func (g *DecisionGateway) fallback(tick int64, err error) {
	if g.metrics != nil {
		g.metrics.OracleFallbacks.Inc()
	}
	if errors.Is(err, ErrOracleUnavailable) || errors.Is(err, ErrConflict) {
		logrus.Warnf("oracle fallback at tick %d: %v", tick, err)
		return
	}
	logrus.Errorf("oracle fallback at tick %d (unexpected): %v", tick, err)
}

// candidateActions renders dispatcher candidates as the action vocabulary
// offered to the oracle.
func candidateActions(candidates []Candidate) []oracle.Action {
	out := make([]oracle.Action, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, oracle.Action{
			Kind:      ActionAssign,
			TargetIDs: []string{c.Task.ID, c.AGV.ID},
		})
	}
	return out
}
