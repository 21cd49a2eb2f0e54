// Package storage defines the persistence surface the fork-choice store
// writes through so a restarted node can resume without replaying sync from
// genesis.
package storage

import "github.com/geanlabs/gean/types"

// BlockStore persists the canonical, signature-stripped block bodies that
// make up the block tree.
type BlockStore interface {
	GetBlock(root types.Root) (*types.Block, bool)
	PutBlock(root types.Root, block *types.Block)
	GetAllBlocks() map[types.Root]*types.Block
}

// SignedBlockStore persists the signed wire envelope each block arrived in,
// kept apart from BlockStore since most readers only need the unsigned body.
type SignedBlockStore interface {
	GetSignedBlock(root types.Root) (*types.SignedBlock, bool)
	PutSignedBlock(root types.Root, sb *types.SignedBlock)
}

// StateStore persists the post-state produced by applying each block.
type StateStore interface {
	GetState(root types.Root) (*types.State, bool)
	PutState(root types.Root, state *types.State)
	GetAllStates() map[types.Root]*types.State
}

// Store is the complete persistence surface the fork-choice store depends
// on. Implementations: storage/memory (volatile, default) and
// storage/pebble (durable, selected via Config.DataDir).
type Store interface {
	BlockStore
	SignedBlockStore
	StateStore
}
