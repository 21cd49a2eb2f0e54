package forkchoice

import (
	"fmt"

	"github.com/geanlabs/gean/types"
	"github.com/geanlabs/gean/validator"
)

// ProduceBlock creates a block using iterative (fixed-point) attestation collection.
// Iterates: build block -> apply state transition -> collect new attestations using
// post-state's LatestJustified as source -> repeat until no new attestations.
// Processing attestations may justify new checkpoints, making additional attestations
// valid. Typically converges in 1-2 iterations.
func (s *Store) ProduceBlock(slot types.Slot, validatorIndex types.ValidatorIndex) (*types.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	headState := s.States[s.Head]
	numValidators := uint64(len(headState.Validators))
	if err := validator.ValidateProposer(slot, validatorIndex, numValidators); err != nil {
		return nil, err
	}

	s.advanceToSlotLocked(slot)

	headRoot := s.Head
	headState, exists := s.States[headRoot]
	if !exists {
		return nil, ErrHeadStateNotFound
	}

	blockExists := func(root types.Root) bool { _, ok := s.Blocks[root]; return ok }

	// Seed the body with the proposer's own attestation for this slot. It
	// travels as an ordinary SignedAttestation entry, same as any other
	// validator's vote, rather than a separate envelope field.
	ownData := s.produceAttestationDataLocked(slot)
	attestations := []types.Attestation{{
		ValidatorID: uint64(validatorIndex),
		Data:        *ownData,
	}}

	// Iteratively collect attestations using fixed-point algorithm.
	for {
		block, postState, err := validator.BuildBlock(slot, validatorIndex, headRoot, headState, attestations)
		if err != nil {
			return nil, err
		}

		// Find new attestations using the post-state's latest justified as source.
		newAttestations := validator.CollectNewAttestations(
			s.LatestKnownVotes,
			blockExists,
			postState.LatestJustified,
			attestations,
		)

		// Fixed point reached: no new attestations found.
		if len(newAttestations) == 0 {
			blockHash, err := block.HashTreeRoot()
			if err != nil {
				return nil, fmt.Errorf("hash block: %w", err)
			}
			s.Blocks[blockHash] = block
			s.States[blockHash] = postState

			// This block bypasses ProcessBlock (no parent lookup needed, we built
			// it from our own head), so fold its attestations into known-vote
			// tracking here the same way ProcessBlock would for a received block.
			for i := range block.Body.Attestations {
				s.processAttestationLocked(&block.Body.Attestations[i], true)
			}

			s.updateHeadLocked()
			return block, nil
		}

		attestations = append(attestations, newAttestations...)
	}
}

// ProduceAttestationData creates attestation data for the given slot.
func (s *Store) ProduceAttestationData(slot types.Slot) *types.AttestationData {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.advanceToSlotLocked(slot)
	return s.produceAttestationDataLocked(slot)
}

// produceAttestationDataLocked builds attestation data for the given slot from
// the store's current head, safe target, and latest justified checkpoint.
// Callers must already hold s.mu and have advanced the clock to slot.
func (s *Store) produceAttestationDataLocked(slot types.Slot) *types.AttestationData {
	headRoot := s.Head
	headBlock := s.Blocks[headRoot]

	headCheckpoint := types.Checkpoint{
		Root: headRoot,
		Slot: headBlock.Slot,
	}

	return &types.AttestationData{
		Slot:   slot,
		Head:   headCheckpoint,
		Target: s.getVoteTargetLocked(),
		Source: s.LatestJustified,
	}
}
