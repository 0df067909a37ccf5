// Package agent binds the decision engine, call reconciliation, and
// thread persistence into a session: one conversational agent driving
// tool calls against a durable history.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/midodimori/langrepl/internal/approval"
	"github.com/midodimori/langrepl/internal/reconcile"
	"github.com/midodimori/langrepl/internal/thread"
	"github.com/midodimori/langrepl/internal/tools"
)

// StepResult is what the reasoning collaborator produces for one step:
// assistant output, the tool calls it wants executed, and the tokens it
// spent producing them.
type StepResult struct {
	Messages []thread.Message
	Calls    []tools.Call
	Usage    thread.Usage
}

// StepFunc is the reasoning collaborator. It receives the current
// thread state and returns the next assistant turn. Implementations
// must honor ctx: on cancellation they return whatever partial output
// exists.
type StepFunc func(ctx context.Context, cp *thread.Checkpoint) (StepResult, error)

// Dispatcher executes an approved call. tools.Registry satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, call tools.Call) (string, error)
}

// Options configures a session.
type Options struct {
	Threads   *thread.Manager
	Engine    *approval.Engine
	Approvals *approval.Manager
	Step      StepFunc
	Dispatch  Dispatcher
	// Rules and RulesPath enable write-back of "always" verdicts. Both
	// optional; without them persistent verdicts act like plain ones.
	Rules     *approval.Rules
	RulesPath string
	Logger    *slog.Logger
}

// Session runs agent steps over one live thread. A step drains fully:
// reasoning output, decisions for every emitted call, execution of the
// allowed ones, and a committed checkpoint. One step runs at a time.
type Session struct {
	threads    *thread.Manager
	engine     *approval.Engine
	approvals  *approval.Manager
	step       StepFunc
	dispatch   Dispatcher
	rules      *approval.Rules
	rulesPath  string
	log        *slog.Logger
	reconciler *reconcile.Reconciler
	controller Controller

	stepMu sync.Mutex
}

// NewSession creates a session. The reconciler is rebuilt from the live
// thread's pending calls, so interrupted executions surface as
// Cancelled rather than silently resuming.
func NewSession(opts Options) (*Session, error) {
	if opts.Threads == nil || opts.Engine == nil || opts.Approvals == nil || opts.Step == nil || opts.Dispatch == nil {
		return nil, errors.New("session: missing collaborator")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Session{
		threads:    opts.Threads,
		engine:     opts.Engine,
		approvals:  opts.Approvals,
		step:       opts.Step,
		dispatch:   opts.Dispatch,
		rules:      opts.Rules,
		rulesPath:  opts.RulesPath,
		log:        opts.Logger,
		reconciler: reconcile.New(),
	}
	if cp := opts.Threads.Current(); cp != nil {
		s.reconciler.LoadFrom(cp)
	}
	return s, nil
}

// Reconciler exposes the live call table, mainly for inspection.
func (s *Session) Reconciler() *reconcile.Reconciler {
	return s.reconciler
}

// Cancel requests cooperative cancellation of the step in flight.
// Idempotent; duplicate requests while settling are no-ops.
func (s *Session) Cancel() bool {
	return s.controller.Cancel()
}

// Step runs one agent step: reasoning, decisions, execution, and a
// committed checkpoint. On cancellation the step still settles fully,
// with open calls marked Cancelled and partial output persisted, and
// returns context.Canceled.
func (s *Session) Step(ctx context.Context) (*thread.Checkpoint, error) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	cp := s.threads.Current()
	if cp == nil {
		return nil, fmt.Errorf("no active thread: %w", thread.ErrNotFound)
	}

	stepCtx, release := s.controller.begin(ctx)
	defer release()

	result, stepErr := s.step(stepCtx, cp)
	if stepErr != nil && !errors.Is(stepErr, context.Canceled) {
		return nil, fmt.Errorf("reasoning step: %w", stepErr)
	}

	next := cp.Clone()
	next.Seq++
	next.Messages = append(next.Messages, result.Messages...)
	next.Usage = next.Usage.Add(result.Usage)

	resultMsgs := s.runCalls(stepCtx, result.Calls)

	if stepCtx.Err() != nil {
		// Sweep whatever the cooperative shutdown left open. Results
		// already produced stay; interrupted calls read as cancelled.
		for _, id := range s.reconciler.CancelOpen() {
			s.log.Info("call cancelled", "call_id", id)
		}
	}
	next.Messages = append(next.Messages, s.collectResults(result.Calls, resultMsgs)...)
	next.PendingCalls = s.reconciler.Snapshot()

	if err := s.threads.Append(next); err != nil {
		if errors.Is(err, thread.ErrConflict) {
			if _, rerr := s.threads.Reload(); rerr != nil {
				return nil, fmt.Errorf("reload after conflict: %w", rerr)
			}
		}
		return nil, fmt.Errorf("commit step: %w", err)
	}
	if stepCtx.Err() != nil && ctx.Err() == nil {
		return next, context.Canceled
	}
	return next, ctx.Err()
}

// runCalls decides and executes every emitted call concurrently. Each
// call settles on its own; a suspended approval for one never blocks
// the others. Returns per-call result text keyed by call ID.
func (s *Session) runCalls(ctx context.Context, calls []tools.Call) map[string]thread.Message {
	results := make(map[string]thread.Message, len(calls))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, call := range calls {
		if err := s.reconciler.Track(call); err != nil {
			s.log.Warn("duplicate call id", "call_id", call.ID, "error", err)
			continue
		}
		wg.Add(1)
		go func(call tools.Call) {
			defer wg.Done()
			msg := s.runCall(ctx, call)
			mu.Lock()
			results[call.ID] = msg
			mu.Unlock()
		}(call)
	}
	wg.Wait()
	return results
}

func (s *Session) runCall(ctx context.Context, call tools.Call) thread.Message {
	decision := s.engine.Decide(call)
	s.reconciler.AddAudit(call.ID, string(decision.Effect)+": "+decision.Reason)
	switch decision.Effect {
	case approval.EffectDeny:
		s.approvals.Record(call, approval.EffectDeny, decision.Reason)
		s.reconciler.Deny(call.ID, approval.DeniedMessage)
		s.log.Info("call denied", "call", call.Name, "reason", decision.Reason)
		return toolMessage(call, approval.DeniedMessage, true)

	case approval.EffectAskUser:
		resp, err := s.approvals.Ask(ctx, call)
		if resp != "" {
			s.reconciler.AddAudit(call.ID, "user: "+string(resp))
		}
		if err != nil || !resp.Allowed() {
			if resp.Persistent() {
				s.persistRule(call, false)
			}
			s.reconciler.Deny(call.ID, approval.DeniedMessage)
			return toolMessage(call, approval.DeniedMessage, true)
		}
		if resp.Persistent() {
			s.persistRule(call, true)
		}

	default:
		s.approvals.Record(call, approval.EffectAllow, decision.Reason)
	}

	return s.execute(ctx, call)
}

func (s *Session) execute(ctx context.Context, call tools.Call) thread.Message {
	if err := s.reconciler.Transition(call.ID, tools.StatusApproved); err != nil {
		return toolMessage(call, err.Error(), true)
	}
	if ctx.Err() != nil {
		// Approved but never started; the cancel sweep will pick it up.
		return toolMessage(call, "Cancelled.", true)
	}
	if err := s.reconciler.Transition(call.ID, tools.StatusExecuting); err != nil {
		return toolMessage(call, err.Error(), true)
	}

	out, err := s.dispatch.Dispatch(ctx, call)
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted mid-flight; leave Executing for the sweep.
			return toolMessage(call, "Cancelled.", true)
		}
		s.reconciler.Fail(call.ID, err)
		s.log.Warn("call failed", "call", call.Name, "error", err)
		return toolMessage(call, err.Error(), true)
	}
	s.reconciler.Resolve(call.ID, out)
	return toolMessage(call, out, false)
}

// collectResults orders result messages by call emission order, so the
// persisted transcript is deterministic regardless of completion order.
func (s *Session) collectResults(calls []tools.Call, results map[string]thread.Message) []thread.Message {
	msgs := make([]thread.Message, 0, len(results))
	for _, call := range calls {
		if msg, ok := results[call.ID]; ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func (s *Session) persistRule(call tools.Call, allow bool) {
	if s.rules == nil || s.rulesPath == "" {
		return
	}
	rule := approval.Rule{Name: call.Name}
	if allow {
		s.rules.AddAllow(rule)
	} else {
		s.rules.AddDeny(rule)
	}
	if err := s.rules.Save(s.rulesPath); err != nil {
		s.log.Warn("persist approval rule", "rule", rule.Name, "error", err)
	}
}

func toolMessage(call tools.Call, content string, isErr bool) thread.Message {
	return thread.Message{
		Role:       "tool",
		Content:    content,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		IsError:    isErr,
	}
}
