// Package forkchoice implements the LMD GHOST fork choice algorithm.
package forkchoice

import "github.com/geanlabs/gean/types"

// GetHead runs LMD-GHOST starting from root. Each vote's weight is pushed up
// the chain onto every ancestor of its target block that sits strictly above
// root's slot; the walk then repeatedly descends into whichever child
// accumulated the most weight until it falls off a leaf. Only children whose
// weight clears minScore are considered -- this is what lets the same
// function serve both the canonical head (minScore=0, known votes) and the
// safe target (a 2/3 floor, new votes) from store.go.
func GetHead(blocks map[types.Root]*types.Block, root types.Root, votes []types.Checkpoint, minScore int) types.Root {
	anchor := anchorRoot(blocks, root)

	weights := tallyAncestorWeights(blocks, anchor, votes)
	forks := viableChildren(blocks, weights, minScore)

	current := anchor
	for {
		next, found := heaviestChild(forks[current], weights, blocks)
		if !found {
			return current
		}
		current = next
	}
}

// anchorRoot substitutes the lowest-slot known block when root is the zero
// hash -- callers that don't have a concrete justified root yet (e.g. a
// freshly-initialized store) pass the zero hash to mean "start from genesis".
func anchorRoot(blocks map[types.Root]*types.Block, root types.Root) types.Root {
	if !root.IsZero() {
		return root
	}
	var lowest types.Root
	lowestSlot := types.Slot(^uint64(0))
	for hash, block := range blocks {
		if block.Slot < lowestSlot {
			lowestSlot = block.Slot
			lowest = hash
		}
	}
	return lowest
}

// tallyAncestorWeights credits each vote's weight to every block between its
// target and root (exclusive of root itself), so a vote for a distant
// descendant also strengthens the ancestors that lead to it.
func tallyAncestorWeights(blocks map[types.Root]*types.Block, root types.Root, votes []types.Checkpoint) map[types.Root]int {
	weights := make(map[types.Root]int, len(votes))
	floor := blocks[root].Slot

	for _, vote := range votes {
		block, known := blocks[vote.Root]
		if !known {
			continue
		}
		ancestor := vote.Root
		for block.Slot > floor {
			weights[ancestor]++
			ancestor = block.ParentRoot
			block = blocks[ancestor]
		}
	}
	return weights
}

// viableChildren groups every block under its parent, but only the ones
// whose tallied weight meets minScore -- blocks below the floor are simply
// invisible to the descent step, as if they didn't exist.
func viableChildren(blocks map[types.Root]*types.Block, weights map[types.Root]int, minScore int) map[types.Root][]types.Root {
	children := make(map[types.Root][]types.Root)
	for hash, block := range blocks {
		if block.ParentRoot.IsZero() {
			continue // genesis has no parent edge to record
		}
		if weights[hash] >= minScore {
			children[block.ParentRoot] = append(children[block.ParentRoot], hash)
		}
	}
	return children
}

// heaviestChild picks the best-scoring candidate among siblings, breaking
// ties on higher slot and then lexicographically larger root so the result
// is the same no matter what order the caller's map iteration produced.
func heaviestChild(siblings []types.Root, weights map[types.Root]int, blocks map[types.Root]*types.Block) (types.Root, bool) {
	if len(siblings) == 0 {
		return types.Root{}, false
	}

	best := siblings[0]
	for _, candidate := range siblings[1:] {
		if outranks(candidate, best, weights, blocks) {
			best = candidate
		}
	}
	return best, true
}

// outranks reports whether candidate should be preferred over current under
// the (weight desc, slot desc, root-bytes desc) ordering from spec section 4.3 --
// i.e. strictly more votes wins, and among equal vote counts the higher slot
// and then the lexicographically greater root wins.
func outranks(candidate, current types.Root, weights map[types.Root]int, blocks map[types.Root]*types.Block) bool {
	if cw, bw := weights[candidate], weights[current]; cw != bw {
		return cw > bw
	}
	if cs, bs := blocks[candidate].Slot, blocks[current].Slot; cs != bs {
		return cs > bs
	}
	return candidate.Compare(current) > 0
}

// GetLatestJustified returns the checkpoint with the highest slot among every
// cached state's own view of justification -- the fork-choice store's
// candidate for latest_justified before a head recompute.
func GetLatestJustified(states map[types.Root]*types.State) *types.Checkpoint {
	var latest *types.Checkpoint
	for _, state := range states {
		if latest == nil || state.LatestJustified.Slot > latest.Slot {
			cp := state.LatestJustified
			latest = &cp
		}
	}
	return latest
}
