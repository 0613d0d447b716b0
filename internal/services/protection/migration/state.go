package migration

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/louisbranch/wardstone/internal/services/protection/storage"
)

const (
	// StageKey names the internal row holding the current stage index.
	StageKey = "migration_stage"
	// OffsetKey names the internal row holding the checkpoint offset.
	OffsetKey = "migration_offset"

	completeValue = "complete"
)

// ErrStateNotFound indicates no migration state has been persisted yet.
var ErrStateNotFound = errors.New("migration state not found")

// State is the persisted position of the pipeline. It only moves forward.
type State struct {
	Stage    int
	Offset   int64
	Complete bool
}

func (s State) String() string {
	if s.Complete {
		return completeValue
	}
	return fmt.Sprintf("stage %d at %d", s.Stage, s.Offset)
}

// after reports whether s is strictly ahead of other.
func (s State) after(other State) bool {
	switch {
	case other.Complete:
		return false
	case s.Complete:
		return true
	case s.Stage != other.Stage:
		return s.Stage > other.Stage
	default:
		return s.Offset > other.Offset
	}
}

// StateStore reads and writes the pipeline position.
type StateStore struct {
	store storage.InternalStore
}

// NewStateStore returns a state store over internal key/value rows.
func NewStateStore(store storage.InternalStore) *StateStore {
	return &StateStore{store: store}
}

// Load returns the persisted state or ErrStateNotFound.
func (s *StateStore) Load(ctx context.Context) (State, error) {
	rawStage, err := s.store.GetInternal(ctx, StageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return State{}, ErrStateNotFound
		}
		return State{}, fmt.Errorf("load migration stage: %w", err)
	}
	rawStage = strings.TrimSpace(rawStage)
	if rawStage == completeValue {
		return State{Complete: true}, nil
	}
	stage, err := strconv.Atoi(rawStage)
	if err != nil || stage < 0 {
		return State{}, fmt.Errorf("parse migration stage %q", rawStage)
	}

	state := State{Stage: stage}
	rawOffset, err := s.store.GetInternal(ctx, OffsetKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return State{}, fmt.Errorf("load migration offset: %w", err)
	default:
		offset, err := strconv.ParseInt(strings.TrimSpace(rawOffset), 10, 64)
		if err != nil {
			return State{}, fmt.Errorf("parse migration offset %q: %w", rawOffset, err)
		}
		state.Offset = offset
	}
	return state, nil
}

// Save persists stage and offset together.
func (s *StateStore) Save(ctx context.Context, state State) error {
	values := map[string]string{
		StageKey:  strconv.Itoa(state.Stage),
		OffsetKey: strconv.FormatInt(state.Offset, 10),
	}
	if state.Complete {
		values[StageKey] = completeValue
		values[OffsetKey] = "0"
	}
	if err := s.store.PutInternal(ctx, values); err != nil {
		return fmt.Errorf("save migration state: %w", err)
	}
	return nil
}
