// Package consensus implements justification tracking helpers for the Lean Ethereum spec.
package consensus

import (
	"sort"

	"github.com/OffchainLabs/go-bitfield"
	"github.com/geanlabs/gean/types"
)

// GetJustifications reconstructs the justifications tally from the flattened
// state encoding. Returns a map from block root to a slice of per-validator
// votes (true = voted).
//
// The per-root chunk of JustificationsValidators is always
// types.ValidatorRegistryLimit bits wide, regardless of the chain's actual
// num_validators -- this keeps the SSZ layout stable as validators join.
func GetJustifications(s *types.State) map[types.Root][]bool {
	justifications := make(map[types.Root][]bool)

	if len(s.JustificationsRoots) == 0 {
		return justifications
	}

	const chunkSize = int(types.ValidatorRegistryLimit)
	flatVotes := bitfield.Bitlist(s.JustificationsValidators)

	for i, root := range s.JustificationsRoots {
		startIdx := i * chunkSize

		votes := make([]bool, chunkSize)
		for j := 0; j < chunkSize; j++ {
			idx := uint64(startIdx + j)
			if idx < flatVotes.Len() {
				votes[j] = flatVotes.BitAt(idx)
			}
		}

		justifications[root] = votes
	}

	return justifications
}

// SetJustifications flattens the justifications tally back into the state's
// SSZ-compatible format. Roots are stored in sorted order for deterministic
// encoding.
func SetJustifications(s *types.State, justifications map[types.Root][]bool) *types.State {
	newState := Copy(s)

	const chunkSize = int(types.ValidatorRegistryLimit)

	if len(justifications) == 0 {
		newState.JustificationsRoots = nil
		newState.JustificationsValidators = bitfield.NewBitlist(0)
		return newState
	}

	roots := make([]types.Root, 0, len(justifications))
	for root := range justifications {
		roots = append(roots, root)
	}
	sortRoots(roots)

	totalBits := len(roots) * chunkSize
	flatVotes := bitfield.NewBitlist(uint64(totalBits))

	for i, root := range roots {
		votes := justifications[root]
		for j, voted := range votes {
			if voted {
				flatVotes.SetBitAt(uint64(i*chunkSize+j), true)
			}
		}
	}

	newState.JustificationsRoots = roots
	newState.JustificationsValidators = flatVotes

	return newState
}

// sortRoots sorts roots lexicographically for deterministic ordering.
func sortRoots(roots []types.Root) {
	sort.Slice(roots, func(i, j int) bool {
		return roots[i].Compare(roots[j]) < 0
	})
}

// CountVotes counts the number of true votes in a vote slice.
func CountVotes(votes []bool) int {
	count := 0
	for _, v := range votes {
		if v {
			count++
		}
	}
	return count
}
