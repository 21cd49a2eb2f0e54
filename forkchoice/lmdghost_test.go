package forkchoice

import (
	"testing"

	"github.com/geanlabs/gean/types"
)

func mkBlock(slot types.Slot, parent types.Root) *types.Block {
	return &types.Block{Slot: slot, ParentRoot: parent}
}

// S5. LMD-GHOST majority wins: G -> A(1) -> B(2) and G -> C(1) -> D(2).
// Two votes for D@2, one for B@2; D must win.
func TestGetHead_MajorityWins(t *testing.T) {
	g := types.Root{0x01}
	blocks := map[types.Root]*types.Block{g: {Slot: 0}}

	a := types.Root{0x02}
	blocks[a] = mkBlock(1, g)
	b := types.Root{0x03}
	blocks[b] = mkBlock(2, a)

	c := types.Root{0x04}
	blocks[c] = mkBlock(1, g)
	d := types.Root{0x05}
	blocks[d] = mkBlock(2, c)

	votes := []types.Checkpoint{
		{Root: d, Slot: 2},
		{Root: d, Slot: 2},
		{Root: b, Slot: 2},
	}

	head := GetHead(blocks, g, votes, 0)
	if head != d {
		t.Errorf("GetHead = %x, want D (%x)", head[:2], d[:2])
	}
}

// S6. Deterministic tie-break: two siblings at slot 1, equal weight. Head must
// equal the sibling with the larger (slot, root-bytes), and repeat calls
// must return the identical root.
func TestGetHead_DeterministicTieBreak(t *testing.T) {
	g := types.Root{0x01}
	blocks := map[types.Root]*types.Block{g: {Slot: 0}}

	sib1 := types.Root{0x02}
	blocks[sib1] = mkBlock(1, g)
	sib2 := types.Root{0x03}
	blocks[sib2] = mkBlock(1, g)

	want := sib2 // 0x03 > 0x02 lexicographically

	// One vote per sibling ties their weight at 1, forcing the walk to fall
	// through to the (slot desc, root lex desc) tie-break.
	votes := []types.Checkpoint{
		{Root: sib1, Slot: 1},
		{Root: sib2, Slot: 1},
	}
	for i := 0; i < 5; i++ {
		got := GetHead(blocks, g, votes, 0)
		if got != want {
			t.Errorf("iteration %d: GetHead = %x, want %x (larger root on tie)", i, got[:2], want[:2])
		}
	}
}

func TestGetHead_ZeroRootUsesLowestSlotBlock(t *testing.T) {
	low := types.Root{0x09}
	high := types.Root{0x0a}
	blocks := map[types.Root]*types.Block{
		low:  {Slot: 0},
		high: {Slot: 5, ParentRoot: low},
	}

	// The walk starts at the lowest-slot block and, with minScore 0, still
	// descends into its only child.
	head := GetHead(blocks, types.Root{}, nil, 0)
	if head != high {
		t.Errorf("GetHead with zero root = %x, want child %x of lowest-slot block", head[:2], high[:2])
	}
}
