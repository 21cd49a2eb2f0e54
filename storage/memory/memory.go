// Package memory is a volatile storage.Store backed by plain maps, used
// whenever a node is run without a data directory.
package memory

import (
	"sync"

	"github.com/geanlabs/gean/types"
)

// Store keeps every block, signed envelope, and state the node has ever
// seen in memory. Nothing is evicted; a long-running node trades memory for
// never having to re-fetch historical objects over the wire.
type Store struct {
	mu sync.RWMutex

	blocks       map[types.Root]*types.Block
	signedBlocks map[types.Root]*types.SignedBlock
	states       map[types.Root]*types.State
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		blocks:       make(map[types.Root]*types.Block),
		signedBlocks: make(map[types.Root]*types.SignedBlock),
		states:       make(map[types.Root]*types.State),
	}
}

func (m *Store) GetBlock(root types.Root) (*types.Block, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	block, ok := m.blocks[root]
	return block, ok
}

func (m *Store) PutBlock(root types.Root, block *types.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[root] = block
}

func (m *Store) GetSignedBlock(root types.Root) (*types.SignedBlock, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	signed, ok := m.signedBlocks[root]
	return signed, ok
}

func (m *Store) PutSignedBlock(root types.Root, sb *types.SignedBlock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signedBlocks[root] = sb
}

func (m *Store) GetState(root types.Root) (*types.State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[root]
	return state, ok
}

func (m *Store) PutState(root types.Root, state *types.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[root] = state
}

func (m *Store) GetAllBlocks() map[types.Root]*types.Block {
	return snapshot(&m.mu, m.blocks)
}

func (m *Store) GetAllStates() map[types.Root]*types.State {
	return snapshot(&m.mu, m.states)
}

// snapshot copies src under a read lock so callers can range over the
// result without holding the store's lock.
func snapshot[V any](mu *sync.RWMutex, src map[types.Root]V) map[types.Root]V {
	mu.RLock()
	defer mu.RUnlock()
	cp := make(map[types.Root]V, len(src))
	for k, v := range src {
		cp[k] = v
	}
	return cp
}
