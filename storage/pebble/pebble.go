// Package pebble implements storage.Store on top of CockroachDB's pebble LSM
// engine, as a durable alternative to storage/memory for nodes that need to
// survive a restart without replaying sync from genesis.
package pebble

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/geanlabs/gean/types"
)

// Key prefixes partition the single pebble keyspace by object kind. A fixed
// one-byte prefix keeps iteration bounds (used by GetAllBlocks/GetAllStates)
// cheap: each is a contiguous range under its prefix.
const (
	prefixBlock       byte = 'b'
	prefixSignedBlock byte = 's'
	prefixState       byte = 't'
)

// sszObject is satisfied by every type this store persists.
type sszObject interface {
	MarshalSSZ() ([]byte, error)
}

// Store is a pebble-backed implementation of storage.Store.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if absent) a pebble database at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func rootKey(prefix byte, root types.Root) []byte {
	k := make([]byte, 1+len(root))
	k[0] = prefix
	copy(k[1:], root[:])
	return k
}

func (s *Store) put(prefix byte, root types.Root, obj sszObject) {
	buf, err := obj.MarshalSSZ()
	if err != nil {
		return
	}
	_ = s.db.Set(rootKey(prefix, root), buf, pebble.NoSync)
}

func (s *Store) get(prefix byte, root types.Root, dst interface{ UnmarshalSSZ([]byte) error }) bool {
	val, closer, err := s.db.Get(rootKey(prefix, root))
	if err != nil {
		return false
	}
	defer closer.Close()
	return dst.UnmarshalSSZ(val) == nil
}

func (s *Store) GetBlock(root types.Root) (*types.Block, bool) {
	block := &types.Block{}
	if !s.get(prefixBlock, root, block) {
		return nil, false
	}
	return block, true
}

func (s *Store) PutBlock(root types.Root, block *types.Block) {
	s.put(prefixBlock, root, block)
}

func (s *Store) GetSignedBlock(root types.Root) (*types.SignedBlock, bool) {
	signed := &types.SignedBlock{}
	if !s.get(prefixSignedBlock, root, signed) {
		return nil, false
	}
	return signed, true
}

func (s *Store) PutSignedBlock(root types.Root, sb *types.SignedBlock) {
	s.put(prefixSignedBlock, root, sb)
}

func (s *Store) GetState(root types.Root) (*types.State, bool) {
	state := &types.State{}
	if !s.get(prefixState, root, state) {
		return nil, false
	}
	return state, true
}

func (s *Store) PutState(root types.Root, state *types.State) {
	s.put(prefixState, root, state)
}

func (s *Store) GetAllBlocks() map[types.Root]*types.Block {
	out := make(map[types.Root]*types.Block)
	s.scan(prefixBlock, func(root types.Root, val []byte) {
		block := &types.Block{}
		if err := block.UnmarshalSSZ(val); err == nil {
			out[root] = block
		}
	})
	return out
}

func (s *Store) GetAllStates() map[types.Root]*types.State {
	out := make(map[types.Root]*types.State)
	s.scan(prefixState, func(root types.Root, val []byte) {
		state := &types.State{}
		if err := state.UnmarshalSSZ(val); err == nil {
			out[root] = state
		}
	})
	return out
}

// scan iterates every key under prefix, invoking fn with the root (key minus
// prefix byte) and a copy of the value.
func (s *Store) scan(prefix byte, fn func(root types.Root, val []byte)) {
	lower := []byte{prefix}
	upper := []byte{prefix + 1}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) != 1+len(types.Root{}) {
			continue
		}
		var root types.Root
		copy(root[:], key[1:])

		val, err := iter.ValueAndErr()
		if err != nil {
			continue
		}
		cp := make([]byte, len(val))
		copy(cp, val)
		fn(root, cp)
	}
}
