// Package schedule dispatches a round of model-requested tool calls against
// the registered tools, honoring a chosen concurrency strategy and letting a
// steering checkpoint cut a round short between or before dispatch.
package schedule

import (
	"context"
	"sync"

	"github.com/xonecas/agentcore/internal/message"
	"github.com/xonecas/agentcore/internal/tool"
)

// Strategy selects how a round of tool calls is dispatched.
type Strategy interface {
	strategyMarker()
}

// SequentialStrategy runs calls one at a time, in model-requested order.
type SequentialStrategy struct{}

// ParallelStrategy runs every call in the round concurrently, bounded by
// Scheduler.Concurrency (0 means unbounded). This is the default.
type ParallelStrategy struct{}

// BatchedStrategy runs calls Size at a time, in order, waiting for each
// batch to finish before starting the next.
type BatchedStrategy struct{ Size int }

func (SequentialStrategy) strategyMarker() {}
func (ParallelStrategy) strategyMarker()   {}
func (BatchedStrategy) strategyMarker()    {}

// SteeringCheck is polled between dispatch points. Returning true means a
// steering message has arrived and no further calls in this round should
// start; calls already in flight still run to completion.
type SteeringCheck func() bool

// Call pairs one model-requested tool-call block with its resolved Tool.
// Tool is nil when the model named a tool not present in the registry.
type Call struct {
	Request message.Content
	Tool    tool.Tool
}

// Outcome is one call's result, tagged with its position in the original
// round so callers can reassemble results in model-requested order even
// though Parallel/Batched dispatch completes them out of order.
type Outcome struct {
	Index  int
	CallID string
	Result tool.Result
	Err    *tool.Error
}

// StartCallback fires right before a call dispatches, letting the caller
// emit a lifecycle event even though Parallel/Batched strategies don't
// otherwise expose per-call timing.
type StartCallback func(index int, c Call)

// Scheduler dispatches one round of Calls per Strategy.
type Scheduler struct {
	Strategy    Strategy
	Concurrency int // ParallelStrategy only; 0 means unbounded
	OnStart     StartCallback
	OnUpdate    tool.UpdateCallback
	OnProgress  tool.ProgressCallback
	Steering    SteeringCheck
}

// New builds a Scheduler. A nil strategy defaults to ParallelStrategy.
func New(strategy Strategy) *Scheduler {
	if strategy == nil {
		strategy = ParallelStrategy{}
	}
	return &Scheduler{Strategy: strategy}
}

// Run dispatches calls per s.Strategy. The returned slice is always the
// same length as calls and in the same order.
func (s *Scheduler) Run(ctx context.Context, calls []Call) []Outcome {
	switch st := s.Strategy.(type) {
	case SequentialStrategy:
		return s.runSequential(ctx, calls)
	case BatchedStrategy:
		size := st.Size
		if size <= 0 {
			size = 1
		}
		return s.runBatched(ctx, calls, size)
	default:
		return s.runParallel(ctx, calls, calls, s.Concurrency)
	}
}

func (s *Scheduler) runSequential(ctx context.Context, calls []Call) []Outcome {
	out := make([]Outcome, len(calls))
	for i, c := range calls {
		if s.checkSteering() {
			out[i] = cancelledOutcome(i, c)
			continue
		}
		out[i] = s.execute(ctx, i, c)
	}
	return out
}

func (s *Scheduler) runBatched(ctx context.Context, calls []Call, size int) []Outcome {
	out := make([]Outcome, len(calls))
	for start := 0; start < len(calls); start += size {
		end := start + size
		if end > len(calls) {
			end = len(calls)
		}
		batch := calls[start:end]

		if s.checkSteering() {
			for i, c := range batch {
				out[start+i] = cancelledOutcome(start+i, c)
			}
			continue
		}

		s.runParallel(ctx, batch, out[start:end], 0)
		for i := range batch {
			out[start+i].Index = start + i
		}
	}
	return out
}

// runParallel dispatches batch concurrently (bounded by concurrency, 0
// meaning unbounded) and writes results into dst, which must have the same
// length as batch. dst may alias a slice of the caller's full result array.
func (s *Scheduler) runParallel(ctx context.Context, batch []Call, dst []Outcome, concurrency int) []Outcome {
	if s.checkSteering() {
		for i, c := range batch {
			dst[i] = cancelledOutcome(i, c)
		}
		return dst
	}

	var sem chan struct{}
	if concurrency > 0 {
		sem = make(chan struct{}, concurrency)
	}

	var wg sync.WaitGroup
	for i, c := range batch {
		wg.Add(1)
		go func(idx int, call Call) {
			defer wg.Done()
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					dst[idx] = cancelledOutcome(idx, call)
					return
				}
			}
			dst[idx] = s.execute(ctx, idx, call)
		}(i, c)
	}
	wg.Wait()
	return dst
}

// execute derives a per-call cancellation handle from ctx — so cancelling
// one call (a future per-call timeout, or a tool asking to abort a sibling)
// never reaches back up to the parent round — and invokes the tool.
func (s *Scheduler) execute(ctx context.Context, index int, c Call) Outcome {
	callID := c.Request.ToolCallID

	if c.Tool == nil {
		return Outcome{
			Index: index, CallID: callID,
			Err: tool.NotFound("no tool registered for " + c.Request.ToolCallName),
		}
	}

	if s.OnStart != nil {
		s.OnStart(index, c)
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ectx := tool.ExecContext{CallID: callID, ToolName: c.Request.ToolCallName, OnUpdate: s.OnUpdate, OnProgress: s.OnProgress}
	result, err := c.Tool.Execute(callCtx, ectx, c.Request.ToolCallArgs)
	return Outcome{Index: index, CallID: callID, Result: result, Err: err}
}

func (s *Scheduler) checkSteering() bool {
	return s.Steering != nil && s.Steering()
}

func cancelledOutcome(index int, c Call) Outcome {
	return Outcome{Index: index, CallID: c.Request.ToolCallID, Err: tool.Cancelled()}
}
