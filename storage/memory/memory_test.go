package memory

import (
	"testing"

	"github.com/geanlabs/gean/types"
)

func TestStore_BlockRoundTrip(t *testing.T) {
	s := New()
	root := types.Root{0x01}
	block := &types.Block{Slot: 5}

	if _, ok := s.GetBlock(root); ok {
		t.Fatal("expected miss on empty store")
	}

	s.PutBlock(root, block)

	got, ok := s.GetBlock(root)
	if !ok {
		t.Fatal("expected hit after PutBlock")
	}
	if got.Slot != block.Slot {
		t.Fatalf("got slot %d, want %d", got.Slot, block.Slot)
	}
}

func TestStore_SignedBlockAndStateRoundTrip(t *testing.T) {
	s := New()
	root := types.Root{0x02}

	signed := &types.SignedBlock{Message: types.Block{Slot: 3}}
	s.PutSignedBlock(root, signed)
	if got, ok := s.GetSignedBlock(root); !ok || got.Message.Slot != 3 {
		t.Fatalf("GetSignedBlock = %+v, %v", got, ok)
	}

	state := &types.State{Slot: 7}
	s.PutState(root, state)
	if got, ok := s.GetState(root); !ok || got.Slot != 7 {
		t.Fatalf("GetState = %+v, %v", got, ok)
	}
}

func TestStore_GetAllBlocksIsASnapshot(t *testing.T) {
	s := New()
	root := types.Root{0x03}
	s.PutBlock(root, &types.Block{Slot: 1})

	snap := s.GetAllBlocks()
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d entries, want 1", len(snap))
	}

	s.PutBlock(types.Root{0x04}, &types.Block{Slot: 2})
	if len(snap) != 1 {
		t.Fatal("mutating the store after GetAllBlocks must not affect the earlier snapshot")
	}
}
