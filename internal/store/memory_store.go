package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// MemoryStore keeps review states in a map guarded by a mutex. States are
// held by value, so every load and save hands out an independent copy.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[PullRequestKey]ReviewState

	now func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[PullRequestKey]ReviewState),
		now:    time.Now,
	}
}

// Load implements StateStore.
func (m *MemoryStore) Load(_ context.Context, repo string,
	prNum int64) (fn.Option[ReviewState], error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[PullRequestKey{Repo: repo, PRNum: prNum}]
	if !ok {
		return fn.None[ReviewState](), nil
	}

	return fn.Some(state), nil
}

// Save implements StateStore.
func (m *MemoryStore) Save(ctx context.Context, repo string, prNum int64,
	state ReviewState) error {

	if err := state.Validate(); err != nil {
		return err
	}

	key := PullRequestKey{Repo: repo, PRNum: prNum}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	state.Repo, state.PRNum = repo, prNum
	state.CreatedAt, state.UpdatedAt = now, now
	if prev, ok := m.states[key]; ok {
		state.CreatedAt = prev.CreatedAt
	}
	m.states[key] = state

	log.TraceS(ctx, "Saved review state in memory", "key", key,
		"state", state.Name)

	return nil
}

// Delete implements StateStore.
func (m *MemoryStore) Delete(_ context.Context, repo string,
	prNum int64) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, PullRequestKey{Repo: repo, PRNum: prNum})

	return nil
}

// List implements Lister.
func (m *MemoryStore) List(_ context.Context) ([]ReviewState, error) {
	m.mu.RLock()
	states := make([]ReviewState, 0, len(m.states))
	for _, s := range m.states {
		states = append(states, s)
	}
	m.mu.RUnlock()

	sortStates(states)

	return states, nil
}

// CountByState implements StateCounter.
func (m *MemoryStore) CountByState(_ context.Context) (map[StateName]int64,
	error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[StateName]int64)
	for _, s := range m.states {
		counts[s.Name]++
	}

	return counts, nil
}

func sortStates(states []ReviewState) {
	sort.Slice(states, func(i, j int) bool {
		if states[i].Repo != states[j].Repo {
			return states[i].Repo < states[j].Repo
		}

		return states[i].PRNum < states[j].PRNum
	})
}

var (
	_ ListingStore = (*MemoryStore)(nil)
	_ StateCounter = (*MemoryStore)(nil)
)
