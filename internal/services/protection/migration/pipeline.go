// Package migration moves name-keyed legacy rows onto stable player
// identities in resumable batches.
//
// The pipeline is a state machine: NOT_STARTED, then each stage in order,
// then COMPLETE. Every Tick walks one bounded batch of the current stage and
// persists the new position before returning, so a stopped process resumes
// from the last checkpoint. A row that fails to convert is logged and
// skipped; the checkpoint still moves past it.
package migration

import (
	"context"
	"errors"
	"fmt"
)

// DefaultBatchSize bounds the rows handled per tick.
const DefaultBatchSize = 250

// Options configures a Pipeline.
type Options struct {
	BatchSize int
	Logf      func(string, ...any)
}

// TickResult reports what one tick did.
type TickResult struct {
	// Stage is the stage the batch belonged to.
	Stage string
	// Handled counts rows handled, including failed ones.
	Handled int
	// Failed counts rows whose handler returned an error.
	Failed int
	// Advanced is set when the stage completed during this tick.
	Advanced bool
	// Done is set once the pipeline is COMPLETE.
	Done bool
}

// Stats are cumulative counters for this process.
type Stats struct {
	Handled int64
	Failed  int64
}

// Pipeline runs stages in order, one batch per tick.
type Pipeline struct {
	stages    []Stage
	states    *StateStore
	batchSize int
	logf      func(string, ...any)

	loaded  bool
	state   State
	started bool
	stats   Stats
}

// New returns a pipeline over stages whose position lives in states.
func New(states *StateStore, stages []Stage, opts Options) *Pipeline {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Pipeline{
		stages:    stages,
		states:    states,
		batchSize: batchSize,
		logf:      logf,
	}
}

// Load reads the persisted position. When none exists the pipeline starts
// at the first stage if legacy rows are present, and is marked COMPLETE
// otherwise.
func (p *Pipeline) Load(ctx context.Context, legacyPresent bool) error {
	state, err := p.states.Load(ctx)
	switch {
	case errors.Is(err, ErrStateNotFound):
		state = State{Complete: !legacyPresent || len(p.stages) == 0}
		if err := p.states.Save(ctx, state); err != nil {
			return err
		}
		if !state.Complete {
			p.logf("migration: legacy rows found, starting at stage %s", p.stages[0].Name())
		}
	case err != nil:
		return err
	}
	if !state.Complete && state.Stage >= len(p.stages) {
		state = State{Complete: true}
	}
	p.state = state
	p.loaded = true
	p.started = false
	return nil
}

// State returns the in-memory position.
func (p *Pipeline) State() State {
	return p.state
}

// Done reports whether the pipeline is COMPLETE.
func (p *Pipeline) Done() bool {
	return p.loaded && p.state.Complete
}

// Stats returns cumulative counters for this process.
func (p *Pipeline) Stats() Stats {
	return p.stats
}

// Pending reports whether the named stage has not completed yet. Unknown
// names are never pending.
func (p *Pipeline) Pending(name string) bool {
	if !p.loaded || p.state.Complete {
		return false
	}
	for i, stage := range p.stages {
		if stage.Name() == name {
			return i >= p.state.Stage
		}
	}
	return false
}

// CurrentStage returns the name of the running stage, or "" when COMPLETE.
func (p *Pipeline) CurrentStage() string {
	if !p.loaded || p.state.Complete {
		return ""
	}
	return p.stages[p.state.Stage].Name()
}

// Tick handles one batch of the current stage. When ctx is cancelled
// mid-batch the rows handled so far are checkpointed and ctx's error is
// returned.
func (p *Pipeline) Tick(ctx context.Context) (TickResult, error) {
	if !p.loaded {
		return TickResult{}, fmt.Errorf("migration state is not loaded")
	}
	if p.state.Complete {
		return TickResult{Done: true}, nil
	}

	stage := p.stages[p.state.Stage]
	result := TickResult{Stage: stage.Name()}
	if !p.started {
		if err := stage.start(ctx); err != nil {
			return result, fmt.Errorf("start stage %s: %w", stage.Name(), err)
		}
		p.started = true
	}

	next := p.state
	exhausted, err := stage.batch(ctx, p.state.Offset, p.batchSize, func(offset int64, rowErr error) bool {
		if rowErr != nil && ctx.Err() != nil {
			// Interrupted rows are retried on resume, not skipped.
			return false
		}
		result.Handled++
		if rowErr != nil {
			result.Failed++
			p.logf("migration: %s row at %d skipped: %v", stage.Name(), offset, rowErr)
		}
		next.Offset = offset
		return true
	})
	p.stats.Handled += int64(result.Handled)
	p.stats.Failed += int64(result.Failed)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		if next.after(p.state) {
			if saveErr := p.save(context.WithoutCancel(ctx), next); saveErr != nil {
				return result, errors.Join(err, saveErr)
			}
		}
		return result, fmt.Errorf("walk stage %s: %w", stage.Name(), err)
	}

	if !exhausted {
		if next.after(p.state) {
			if err := p.save(ctx, next); err != nil {
				return result, err
			}
		}
		return result, nil
	}

	if err := stage.complete(ctx); err != nil {
		// Keep the batch checkpoint; completion is retried next tick.
		if next.after(p.state) {
			if saveErr := p.save(ctx, next); saveErr != nil {
				return result, errors.Join(err, saveErr)
			}
		}
		return result, fmt.Errorf("complete stage %s: %w", stage.Name(), err)
	}

	advanced := State{Stage: p.state.Stage + 1}
	if advanced.Stage >= len(p.stages) {
		advanced = State{Complete: true}
	}
	if err := p.save(ctx, advanced); err != nil {
		return result, err
	}
	p.started = false
	result.Advanced = true
	result.Done = advanced.Complete
	if advanced.Complete {
		p.logf("migration: complete, %d rows handled, %d skipped", p.stats.Handled, p.stats.Failed)
	} else {
		p.logf("migration: stage %s complete, starting %s", stage.Name(), p.stages[advanced.Stage].Name())
	}
	return result, nil
}

// Run ticks until the pipeline completes or ctx ends.
func (p *Pipeline) Run(ctx context.Context) error {
	for !p.Done() {
		if _, err := p.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) save(ctx context.Context, state State) error {
	if err := p.states.Save(ctx, state); err != nil {
		return err
	}
	p.state = state
	return nil
}
