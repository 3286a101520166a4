package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/backyardfi/vaultledger/internal/models"
)

// Memory is an in-process Store used by tests and local tooling. Transact
// runs against a deep copy of the state and swaps it in on success, so a
// failed transaction leaves nothing behind.
type Memory struct {
	mu    sync.Mutex
	state *memoryState
}

type memoryState struct {
	vaults     map[string]models.Vault
	snapshots  map[string]map[int64]models.VaultSnapshot
	strategies map[string]models.Strategy
	entries    map[string]models.VaultStrategy
	seq        map[string]int
	nextSeq    int
	nextSnapID uint
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{state: newMemoryState()}
}

func newMemoryState() *memoryState {
	return &memoryState{
		vaults:     make(map[string]models.Vault),
		snapshots:  make(map[string]map[int64]models.VaultSnapshot),
		strategies: make(map[string]models.Strategy),
		entries:    make(map[string]models.VaultStrategy),
		seq:        make(map[string]int),
		nextSnapID: 1,
	}
}

func (st *memoryState) clone() *memoryState {
	c := newMemoryState()
	c.nextSeq = st.nextSeq
	c.nextSnapID = st.nextSnapID
	for k, v := range st.vaults {
		c.vaults[k] = v
	}
	for k, byTime := range st.snapshots {
		inner := make(map[int64]models.VaultSnapshot, len(byTime))
		for ts, snap := range byTime {
			inner[ts] = snap
		}
		c.snapshots[k] = inner
	}
	for k, v := range st.strategies {
		c.strategies[k] = v
	}
	for k, v := range st.entries {
		c.entries[k] = v
	}
	for k, v := range st.seq {
		c.seq[k] = v
	}
	return c
}

func (st *memoryState) track(id string) {
	st.seq[id] = st.nextSeq
	st.nextSeq++
}

func (m *Memory) CreateVault(_ context.Context, vault *models.Vault) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.state.vaults {
		if v.Address == vault.Address {
			return fmt.Errorf("vault address %s already registered", vault.Address)
		}
	}
	m.state.vaults[vault.ID] = *vault
	m.state.track(vault.ID)
	return nil
}

func (m *Memory) GetVault(_ context.Context, id string) (*models.Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vault, ok := m.state.vaults[id]
	if !ok {
		return nil, fmt.Errorf("vault %s: %w", id, ErrNotFound)
	}
	return &vault, nil
}

func (m *Memory) ListVaults(_ context.Context) ([]models.Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vaults := make([]models.Vault, 0, len(m.state.vaults))
	for _, v := range m.state.vaults {
		vaults = append(vaults, v)
	}
	sortBySeq(m.state.seq, vaults, func(v models.Vault) string { return v.ID })
	return vaults, nil
}

func (m *Memory) ListVaultsByPlatform(_ context.Context, platform string) ([]models.Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var vaults []models.Vault
	for _, v := range m.state.vaults {
		if v.Platform == platform {
			vaults = append(vaults, v)
		}
	}
	sortBySeq(m.state.seq, vaults, func(v models.Vault) string { return v.ID })
	return vaults, nil
}

func (m *Memory) SaveVault(_ context.Context, vault *models.Vault) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.vaults[vault.ID]; !ok {
		return fmt.Errorf("vault %s: %w", vault.ID, ErrNotFound)
	}
	m.state.vaults[vault.ID] = *vault
	return nil
}

func (m *Memory) UpsertSnapshot(_ context.Context, snapshot *models.VaultSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byTime, ok := m.state.snapshots[snapshot.VaultID]
	if !ok {
		byTime = make(map[int64]models.VaultSnapshot)
		m.state.snapshots[snapshot.VaultID] = byTime
	}
	key := snapshot.RecordedAt.UnixNano()
	if existing, ok := byTime[key]; ok {
		snapshot.ID = existing.ID
	} else {
		snapshot.ID = m.state.nextSnapID
		m.state.nextSnapID++
	}
	byTime[key] = *snapshot
	return nil
}

func (m *Memory) ListSnapshots(ctx context.Context, vaultID string) ([]models.VaultSnapshot, error) {
	return m.ListSnapshotsSince(ctx, vaultID, time.Time{})
}

func (m *Memory) ListSnapshotsSince(_ context.Context, vaultID string, since time.Time) ([]models.VaultSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var snapshots []models.VaultSnapshot
	for _, snap := range m.state.snapshots[vaultID] {
		if !snap.RecordedAt.Before(since) {
			snapshots = append(snapshots, snap)
		}
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].RecordedAt.Before(snapshots[j].RecordedAt)
	})
	return snapshots, nil
}

func (m *Memory) CreateStrategy(_ context.Context, strategy *models.Strategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.strategies[strategy.ID] = *strategy
	m.state.track(strategy.ID)
	return nil
}

func (m *Memory) GetStrategy(_ context.Context, id string) (*models.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	strategy, ok := m.state.strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy %s: %w", id, ErrNotFound)
	}
	return &strategy, nil
}

func (m *Memory) ListStrategiesByUser(_ context.Context, userID string) ([]models.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var strategies []models.Strategy
	for _, s := range m.state.strategies {
		if s.UserID == userID {
			strategies = append(strategies, s)
		}
	}
	sortBySeq(m.state.seq, strategies, func(s models.Strategy) string { return s.ID })
	return strategies, nil
}

func (m *Memory) DeleteStrategy(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.strategies[id]; !ok {
		return fmt.Errorf("strategy %s: %w", id, ErrNotFound)
	}
	delete(m.state.strategies, id)
	for entryID, entry := range m.state.entries {
		if entry.StrategyID == id {
			delete(m.state.entries, entryID)
		}
	}
	return nil
}

func (m *Memory) CreateEntry(_ context.Context, entry *models.VaultStrategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.entries[entry.ID] = *entry
	m.state.track(entry.ID)
	return nil
}

func (m *Memory) ListEntriesByStrategy(_ context.Context, strategyID string) ([]models.VaultStrategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []models.VaultStrategy
	for _, e := range m.state.entries {
		if e.StrategyID == strategyID {
			entries = append(entries, e)
		}
	}
	sortBySeq(m.state.seq, entries, func(e models.VaultStrategy) string { return e.ID })
	return entries, nil
}

func (m *Memory) ListEntriesByVault(_ context.Context, vaultID string) ([]models.VaultStrategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []models.VaultStrategy
	for _, e := range m.state.entries {
		if e.VaultID == vaultID {
			entries = append(entries, e)
		}
	}
	sortBySeq(m.state.seq, entries, func(e models.VaultStrategy) string { return e.ID })
	return entries, nil
}

func (m *Memory) UpdateEntryAccrual(_ context.Context, entryID string, interestToken, interestUSD float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.state.entries[entryID]
	if !ok {
		return fmt.Errorf("ledger entry %s: %w", entryID, ErrNotFound)
	}
	entry.InterestEarned = interestToken
	entry.InterestEarnedUSD = interestUSD
	entry.UpdatedAt = time.Now().UTC()
	m.state.entries[entryID] = entry
	return nil
}

func (m *Memory) Transact(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &Memory{state: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

// sortBySeq orders rows by insertion sequence, which matches the gorm
// store's created_at ordering without relying on clock precision.
func sortBySeq[T any](seq map[string]int, rows []T, id func(T) string) {
	sort.Slice(rows, func(i, j int) bool {
		return seq[id(rows[i])] < seq[id(rows[j])]
	})
}
