package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"labledger/storage"
)

// Manager is a write overlay on top of the committed key/value store. Reads
// see pending writes first; nothing reaches the database until Commit.
type Manager struct {
	db      storage.Database
	pending map[string][]byte
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, pending: make(map[string][]byte)}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(hashed []byte) ([]byte, error) {
	if data, ok := m.pending[string(hashed)]; ok {
		return data, nil
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) put(hashed, value []byte) {
	m.pending[string(hashed)] = append([]byte(nil), value...)
}

// Dirty reports whether the overlay holds uncommitted writes.
func (m *Manager) Dirty() bool { return len(m.pending) > 0 }

// Commit flushes every pending write to the database as one batch and resets
// the overlay.
func (m *Manager) Commit() error {
	if len(m.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m.pending))
	for k := range m.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := storage.NewBatch()
	for _, k := range keys {
		batch.Put([]byte(k), m.pending[k])
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.pending = make(map[string][]byte)
	return nil
}

// Discard drops every pending write.
func (m *Manager) Discard() {
	m.pending = make(map[string][]byte)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the database.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.put(kvKey(key), encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

var (
	listLenPrefix   = []byte("list/len/")
	listEntryPrefix = []byte("list/entry/")
)

func listEntryKey(key []byte, index uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], index)
	return prefixed(listEntryPrefix, buf[:], key)
}

// ListLen returns the number of entries appended to the list named key.
func (m *Manager) ListLen(key []byte) (uint64, error) {
	if len(key) == 0 {
		return 0, fmt.Errorf("kv: key must not be empty")
	}
	var n uint64
	if _, err := m.KVGet(prefixed(listLenPrefix, key), &n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListAppend stores value as the next entry of the list named key. Entries
// live under their own keys, so an append writes one entry and the length
// regardless of list size. Duplicates are not filtered.
func (m *Manager) ListAppend(key, value []byte) error {
	n, err := m.ListLen(key)
	if err != nil {
		return err
	}
	if err := m.KVPut(listEntryKey(key, n), value); err != nil {
		return err
	}
	return m.KVPut(prefixed(listLenPrefix, key), n+1)
}

// ListEntries returns every entry of the list named key in append order. A
// missing list yields an empty, non-nil slice.
func (m *Manager) ListEntries(key []byte) ([][]byte, error) {
	n, err := m.ListLen(key)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		var entry []byte
		ok, err := m.KVGet(listEntryKey(key, i), &entry)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("kv: list entry %d missing", i)
		}
		out = append(out, entry)
	}
	return out, nil
}
