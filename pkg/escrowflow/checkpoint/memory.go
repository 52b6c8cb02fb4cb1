package checkpoint

import (
	"bytes"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps checkpoints in memory. Data is lost when the process
// exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[string]storedCheckpoint // escrowID -> txHash -> checkpoint
	closed bool
}

type storedCheckpoint struct {
	data      []byte
	sequence  int
	timestamp time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]storedCheckpoint),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(escrowID, txHash string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if m.data[escrowID] == nil {
		m.data[escrowID] = make(map[string]storedCheckpoint)
	}

	seq := 1
	for _, cp := range m.data[escrowID] {
		if cp.sequence >= seq {
			seq = cp.sequence + 1
		}
	}

	m.data[escrowID][txHash] = storedCheckpoint{
		data:      bytes.Clone(data),
		sequence:  seq,
		timestamp: time.Now().UTC(),
	}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(escrowID, txHash string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	cp, ok := m.data[escrowID][txHash]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(cp.data), nil
}

// Latest implements Store.
func (m *MemoryStore) Latest(escrowID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var latest *storedCheckpoint
	for _, cp := range m.data[escrowID] {
		if latest == nil || cp.sequence > latest.sequence {
			latest = &cp
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return bytes.Clone(latest.data), nil
}

// List implements Store.
func (m *MemoryStore) List(escrowID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	journal := m.data[escrowID]
	infos := make([]Info, 0, len(journal))
	for txHash, cp := range journal {
		infos = append(infos, Info{
			EscrowID:  escrowID,
			TxHash:    txHash,
			Sequence:  cp.sequence,
			Timestamp: cp.timestamp,
			Size:      int64(len(cp.data)),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Sequence < infos[j].Sequence
	})
	return infos, nil
}

// Escrows implements Store.
func (m *MemoryStore) Escrows() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	ids := make([]string, 0, len(m.data))
	for id, journal := range m.data {
		if len(journal) > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(escrowID, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if journal, ok := m.data[escrowID]; ok {
		delete(journal, txHash)
	}
	return nil
}

// DeleteEscrow implements Store.
func (m *MemoryStore) DeleteEscrow(escrowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.data, escrowID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// Len returns the total number of checkpoints across all escrows.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, journal := range m.data {
		count += len(journal)
	}
	return count
}
