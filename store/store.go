package store

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"attendance-insights-api/dataset"
	"attendance-insights-api/training"
)

// State is the lifecycle position of the store.
type State string

const (
	StateEmpty      State = "EMPTY"
	StateLoading    State = "LOADING"
	StateReady      State = "READY"
	StateLoadFailed State = "LOAD_FAILED"
)

var (
	ErrNotReady      = errors.New("data not ready")
	ErrBadTransition = errors.New("invalid state transition")
	ErrIncomplete    = errors.New("snapshot has records without derived columns")
)

// Snapshot is one fully derived, immutable view of the data and the models
// trained on it.
type Snapshot struct {
	Version  uint64
	Dataset  *dataset.Dataset
	Models   training.Set
	LoadedAt time.Time
}

// Status is what readers see. Snapshot is nil unless State is READY.
type Status struct {
	State     State
	Error     string
	Snapshot  *Snapshot
	ChangedAt time.Time
}

// Store is the single-writer analytics state. Readers never lock: the
// current status is swapped in with one atomic pointer store.
type Store struct {
	mu      sync.Mutex
	status  atomic.Pointer[Status]
	version uint64
	now     func() time.Time
}

func New() *Store {
	s := &Store{now: time.Now}
	s.status.Store(&Status{State: StateEmpty, ChangedAt: s.now()})
	return s
}

// BeginLoading moves EMPTY to LOADING. Any other starting state is rejected
// because reloads only happen at process start.
func (s *Store) BeginLoading() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.status.Load()
	if cur.State != StateEmpty {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, cur.State, StateLoading)
	}
	s.status.Store(&Status{State: StateLoading, ChangedAt: s.now()})
	return nil
}

// Publish moves LOADING to READY with ds as the visible snapshot. Every record
// must already carry its derived columns.
func (s *Store) Publish(ds *dataset.Dataset, models training.Set) (*Snapshot, error) {
	if !ds.Complete() {
		return nil, ErrIncomplete
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.status.Load()
	if cur.State != StateLoading {
		return nil, fmt.Errorf("%w: %s -> %s", ErrBadTransition, cur.State, StateReady)
	}
	s.version++
	now := s.now()
	snap := &Snapshot{Version: s.version, Dataset: ds, Models: models, LoadedAt: now}
	s.status.Store(&Status{State: StateReady, Snapshot: snap, ChangedAt: now})
	return snap, nil
}

// Fail moves LOADING to LOAD_FAILED and records the cause.
func (s *Store) Fail(cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.status.Load()
	if cur.State != StateLoading {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, cur.State, StateLoadFailed)
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	s.status.Store(&Status{State: StateLoadFailed, Error: msg, ChangedAt: s.now()})
	return nil
}

// Current returns the published snapshot, or ErrNotReady.
func (s *Store) Current() (*Snapshot, error) {
	st := s.status.Load()
	if st.State != StateReady {
		return nil, ErrNotReady
	}
	return st.Snapshot, nil
}

func (s *Store) Status() Status {
	return *s.status.Load()
}
