package capacity

import (
	"context"
	"sync"
)

// Memory is an in-process Ledger guarded by a mutex. The *Locked methods skip the mutex for
// callers, such as the memory store, that hold their own lock over the ledger and the
// records it guards.
type Memory struct {
	mu     sync.Mutex
	totals map[string]int
	claims map[string]map[string]int
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{totals: map[string]int{}, claims: map[string]map[string]int{}}
}

func (m *Memory) TryClaim(_ context.Context, req Request) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TryClaimLocked(req)
}

// TryClaimLocked is TryClaim for callers that already serialize access to the ledger.
func (m *Memory) TryClaimLocked(req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}
	total := m.totals[req.Key]
	held := m.claims[req.Key][req.Claimant]
	res := Result{ClaimantUnits: held, TotalUnits: total}

	if req.Ceiling != nil && total+req.Units > *req.Ceiling {
		res.Reason = ReasonCeiling
		return res, nil
	}
	if req.ClaimantCeiling != nil && held+req.Units > *req.ClaimantCeiling {
		res.Reason = ReasonClaimantCeiling
		return res, nil
	}

	if m.claims[req.Key] == nil {
		m.claims[req.Key] = map[string]int{}
	}
	m.totals[req.Key] = total + req.Units
	m.claims[req.Key][req.Claimant] = held + req.Units
	return Result{Accepted: true, ClaimantUnits: held + req.Units, TotalUnits: total + req.Units}, nil
}

func (m *Memory) Release(_ context.Context, key, claimant string, units int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleaseLocked(key, claimant, units)
	return nil
}

// ReleaseLocked gives back up to units held by claimant.
func (m *Memory) ReleaseLocked(key, claimant string, units int) {
	held := m.claims[key][claimant]
	if units > held {
		units = held
	}
	if units <= 0 {
		return
	}
	m.claims[key][claimant] = held - units
	m.totals[key] -= units
}

func (m *Memory) ClaimantUnits(_ context.Context, key, claimant string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ClaimantUnitsLocked(key, claimant), nil
}

func (m *Memory) ClaimantUnitsLocked(key, claimant string) int {
	return m.claims[key][claimant]
}

func (m *Memory) TotalUnits(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TotalUnitsLocked(key), nil
}

func (m *Memory) TotalUnitsLocked(key string) int {
	return m.totals[key]
}

// Snapshot is a copy of the ledger state, used to roll back a failed multi-step change.
type Snapshot struct {
	totals map[string]int
	claims map[string]map[string]int
}

// SnapshotLocked copies the current state.
func (m *Memory) SnapshotLocked() Snapshot {
	s := Snapshot{totals: make(map[string]int, len(m.totals)), claims: make(map[string]map[string]int, len(m.claims))}
	for k, v := range m.totals {
		s.totals[k] = v
	}
	for k, c := range m.claims {
		cp := make(map[string]int, len(c))
		for who, v := range c {
			cp[who] = v
		}
		s.claims[k] = cp
	}
	return s
}

// RestoreLocked resets the ledger to s.
func (m *Memory) RestoreLocked(s Snapshot) {
	m.totals = s.totals
	m.claims = s.claims
}
