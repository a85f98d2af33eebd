package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"genserver/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound      = errors.New("task not found")
	ErrTerminalState = errors.New("task is in a terminal state")
)

// Patch is a partial task update. Nil fields are left untouched.
type Patch struct {
	State    *domain.TaskState
	Progress *int
	Message  *string
	Result   *string
	Error    *string
}

// Store holds every in-flight and recently finished task for this process.
// Each task is owned by exactly one orchestration goroutine, so per-id
// operations only need the map-level lock.
type Store struct {
	mu        sync.RWMutex
	tasks     map[string]domain.Task
	retention time.Duration
}

func New(retention time.Duration) *Store {
	return &Store{
		tasks:     make(map[string]domain.Task),
		retention: retention,
	}
}

// Create allocates a new pending task record and returns it.
func (s *Store) Create(kind domain.TaskKind) domain.Task {
	now := time.Now()
	t := domain.Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		State:     domain.StatePending,
		Progress:  0,
		Message:   "Task queued",
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()
	return t
}

// Update merges the patch into the stored record and refreshes UpdatedAt.
// State transitions out of a terminal state are rejected, and progress never
// moves backwards.
func (s *Store) Update(id string, p Patch) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}

	if p.State != nil && *p.State != t.State {
		if t.State.Terminal() {
			return domain.Task{}, ErrTerminalState
		}
		t.State = *p.State
	}
	if p.Progress != nil && *p.Progress > t.Progress {
		t.Progress = *p.Progress
	}
	if p.Message != nil {
		t.Message = *p.Message
	}
	if p.Result != nil {
		t.Result = *p.Result
	}
	if p.Error != nil {
		t.Error = *p.Error
	}
	t.UpdatedAt = time.Now()

	s.tasks[id] = t
	return t, nil
}

func (s *Store) Get(id string) (domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return t, nil
}

func (s *Store) List() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

// Sweep drops every task created before now minus the retention window,
// regardless of state, and returns the number removed.
func (s *Store) Sweep(now time.Time) int {
	cutoff := now.Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, t := range s.tasks {
		if t.CreatedAt.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps on a fixed interval until the context is canceled.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(time.Now()); n > 0 {
				log.Ctx(ctx).Info().Int("removed", n).Msg("swept expired tasks")
			}
		}
	}
}
