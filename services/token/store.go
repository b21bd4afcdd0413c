package token

import (
	"sync"
	"time"
)

// Store holds the refresh-token registry and the revocation set. All keys are
// sha256 hex hashes of the raw token string. Implementations must be safe for
// concurrent use.
type Store interface {
	PutRefresh(hash string, rec Record) error
	GetRefresh(hash string) (*Record, error)
	DeleteRefresh(hash string) error

	// ListRefresh returns active registry entries for a user, keyed by hash.
	// An empty deviceID matches every device.
	ListRefresh(userID uint, deviceID string) (map[string]Record, error)

	// AddRevoked marks a hash revoked. expiresAt is the revoked token's own
	// expiry; the sweep uses it to evict entries that no longer matter.
	AddRevoked(hash string, expiresAt time.Time) error
	IsRevoked(hash string) (bool, error)

	Sweep(now time.Time, retention time.Duration) (SweepResult, error)
}

type SweepResult struct {
	ExpiredRefresh int
	EvictedRevoked int
}

type MemoryStore struct {
	mu      sync.RWMutex
	refresh map[string]Record
	revoked map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		refresh: make(map[string]Record),
		revoked: make(map[string]time.Time),
	}
}

func (m *MemoryStore) PutRefresh(hash string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refresh[hash] = rec
	return nil
}

func (m *MemoryStore) GetRefresh(hash string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.refresh[hash]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) DeleteRefresh(hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.refresh, hash)
	return nil
}

func (m *MemoryStore) ListRefresh(userID uint, deviceID string) (map[string]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Record)
	for hash, rec := range m.refresh {
		if rec.UserID != userID {
			continue
		}
		if deviceID != "" && rec.DeviceID != deviceID {
			continue
		}
		out[hash] = rec
	}
	return out, nil
}

func (m *MemoryStore) AddRevoked(hash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Membership is one-way; re-revoking must not shorten retention.
	if existing, ok := m.revoked[hash]; !ok || expiresAt.After(existing) {
		m.revoked[hash] = expiresAt
	}
	return nil
}

func (m *MemoryStore) IsRevoked(hash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.revoked[hash]
	return ok, nil
}

func (m *MemoryStore) Sweep(now time.Time, retention time.Duration) (SweepResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res SweepResult

	for hash, rec := range m.refresh {
		if now.After(rec.ExpiresAt) {
			delete(m.refresh, hash)
			// Keep a revocation entry so a replay after the sweep still
			// resolves to "revoked" rather than "not found".
			if existing, ok := m.revoked[hash]; !ok || rec.ExpiresAt.After(existing) {
				m.revoked[hash] = rec.ExpiresAt
			}
			res.ExpiredRefresh++
		}
	}

	for hash, expiresAt := range m.revoked {
		if now.After(expiresAt.Add(retention)) {
			delete(m.revoked, hash)
			res.EvictedRevoked++
		}
	}

	return res, nil
}
