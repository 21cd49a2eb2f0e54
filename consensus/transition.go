// Package consensus implements the Lean Ethereum state transition function.
package consensus

import (
	"fmt"

	"github.com/OffchainLabs/go-bitfield"
	"github.com/geanlabs/gean/types"
)

// ProcessSlot performs per-slot maintenance.
// If the latest block header has an empty state_root, fill it with the current state root.
func ProcessSlot(s *types.State) (*types.State, error) {
	if s.LatestBlockHeader.StateRoot.IsZero() {
		stateRoot, err := s.HashTreeRoot()
		if err != nil {
			return nil, fmt.Errorf("hash state: %w", err)
		}
		newState := Copy(s)
		newState.LatestBlockHeader.StateRoot = stateRoot
		return newState, nil
	}
	return s, nil
}

// ProcessSlots advances the state through empty slots up to targetSlot.
func ProcessSlots(s *types.State, targetSlot types.Slot) (*types.State, error) {
	if s.Slot >= targetSlot {
		return nil, fmt.Errorf("%w: target %d, current %d", ErrBackwardSlot, targetSlot, s.Slot)
	}

	state := s
	var err error
	for state.Slot < targetSlot {
		state, err = ProcessSlot(state)
		if err != nil {
			return nil, err
		}
		newState := Copy(state)
		newState.Slot++
		state = newState
	}
	return state, nil
}

// ProcessBlockHeader validates and applies a block header.
func ProcessBlockHeader(s *types.State, block *types.Block) (*types.State, error) {
	// Validate slot matches
	if block.Slot != s.Slot {
		return nil, fmt.Errorf("%w: block %d, state %d", ErrSlotMismatch, block.Slot, s.Slot)
	}

	// Block must be newer than latest header
	if block.Slot <= s.LatestBlockHeader.Slot {
		return nil, fmt.Errorf("%w: block %d, latest header %d", ErrStaleBlock, block.Slot, s.LatestBlockHeader.Slot)
	}

	// Validate proposer (round-robin)
	expectedProposer := uint64(block.Slot) % s.Config.NumValidators
	if block.ProposerIndex != expectedProposer {
		return nil, fmt.Errorf("%w: got %d for slot %d, expected %d", ErrWrongProposer, block.ProposerIndex, block.Slot, expectedProposer)
	}

	// Validate parent root
	expectedParent, err := s.LatestBlockHeader.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("hash latest header: %w", err)
	}
	if block.ParentRoot != expectedParent {
		return nil, fmt.Errorf("%w: got %x, expected %x", ErrParentMismatch, block.ParentRoot[:8], expectedParent[:8])
	}

	newState := Copy(s)

	// First block after genesis: mark genesis as justified and finalized
	if s.LatestBlockHeader.Slot == 0 {
		newState.LatestJustified.Root = block.ParentRoot
		newState.LatestFinalized.Root = block.ParentRoot
	}

	// Append parent root to history
	newState.HistoricalBlockHashes = append(newState.HistoricalBlockHashes, block.ParentRoot)

	// Track justified slot (genesis slot 0 is always justified)
	parentSlot := int(s.LatestBlockHeader.Slot)
	newState.JustifiedSlots = appendBitAt(newState.JustifiedSlots, parentSlot, s.LatestBlockHeader.Slot == 0)

	// Fill empty slots with zero hashes
	emptySlots := int(block.Slot - s.LatestBlockHeader.Slot - 1)
	for i := 0; i < emptySlots; i++ {
		newState.HistoricalBlockHashes = append(newState.HistoricalBlockHashes, types.Root{})
		emptySlot := parentSlot + 1 + i
		newState.JustifiedSlots = appendBitAt(newState.JustifiedSlots, emptySlot, false)
	}

	// Create new block header (state_root left empty, filled by next ProcessSlot)
	bodyRoot, err := block.Body.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("hash body: %w", err)
	}
	newState.LatestBlockHeader = types.BlockHeader{
		Slot:          block.Slot,
		ProposerIndex: block.ProposerIndex,
		ParentRoot:    block.ParentRoot,
		StateRoot:     types.Root{},
		BodyRoot:      bodyRoot,
	}

	return newState, nil
}

// ProcessAttestations processes attestation votes.
//
// 1. Get the justifications tally from flattened state.
// 2. For each signed attestation, validate and track per-validator votes.
// 3. Justify when a 2/3 supermajority is reached (3*count >= 2*num_validators).
// 4. Finalize when no intermediate justifiable slots exist between source and target.
// 5. Persist the tally back to state.
func ProcessAttestations(s *types.State, attestations []types.SignedAttestation) (*types.State, error) {
	newState := Copy(s)

	justifications := GetJustifications(newState)

	for _, signed := range attestations {
		vote := signed.Message.Data

		sourceSlot := int(vote.Source.Slot)
		targetSlot := int(vote.Target.Slot)
		validatorID := int(signed.Message.ValidatorID)

		// Validation 1: Source must be justified
		if !getBit(newState.JustifiedSlots, sourceSlot) {
			continue
		}

		// Validation 2: Target must NOT already be justified
		if getBit(newState.JustifiedSlots, targetSlot) {
			continue
		}

		// Validation 3: Source root must match historical block hash at that slot
		if sourceSlot >= len(newState.HistoricalBlockHashes) ||
			vote.Source.Root != newState.HistoricalBlockHashes[sourceSlot] {
			continue
		}

		// Validation 4: Target root must match historical block hash at that
		// slot, or the target may reference the in-flight header of the block
		// currently being processed (its root isn't in history yet -- that
		// only happens on the next ProcessSlot).
		targetMatchesHistory := targetSlot < len(newState.HistoricalBlockHashes) &&
			vote.Target.Root == newState.HistoricalBlockHashes[targetSlot]
		targetMatchesInFlight := false
		if !targetMatchesHistory && vote.Target.Slot == newState.LatestBlockHeader.Slot {
			headerRoot, err := newState.LatestBlockHeader.HashTreeRoot()
			if err != nil {
				return nil, fmt.Errorf("hash in-flight header: %w", err)
			}
			targetMatchesInFlight = vote.Target.Root == headerRoot
		}
		if !targetMatchesHistory && !targetMatchesInFlight {
			continue
		}

		// Validation 5: Target slot must be greater than source slot
		if vote.Target.Slot <= vote.Source.Slot {
			continue
		}

		// Validation 6: Target must be a justifiable slot after finalized
		if !vote.Target.Slot.IsJustifiableAfter(newState.LatestFinalized.Slot) {
			continue
		}

		if validatorID < 0 || validatorID >= int(types.ValidatorRegistryLimit) {
			continue
		}

		if _, exists := justifications[vote.Target.Root]; !exists {
			justifications[vote.Target.Root] = make([]bool, types.ValidatorRegistryLimit)
		}

		if !justifications[vote.Target.Root][validatorID] {
			justifications[vote.Target.Root][validatorID] = true
		}

		count := CountVotes(justifications[vote.Target.Root])

		// 2/3 supermajority check, avoiding integer division.
		if 3*count >= 2*int(newState.Config.NumValidators) {
			newState.LatestJustified = vote.Target
			newState.JustifiedSlots = setBit(newState.JustifiedSlots, targetSlot, true)

			delete(justifications, vote.Target.Root)

			// Finalize only if no intermediate justifiable slot exists between
			// source and target.
			canFinalize := true
			for slot := vote.Source.Slot + 1; slot < vote.Target.Slot; slot++ {
				if slot.IsJustifiableAfter(newState.LatestFinalized.Slot) {
					canFinalize = false
					break
				}
			}

			if canFinalize {
				newState.LatestFinalized = vote.Source
			}
		}
	}

	newState = SetJustifications(newState, justifications)

	return newState, nil
}

// StateTransition is the top-level entry point: given a pre-state and a signed
// block whose signature has already been checked against the external XMSS
// oracle (see crypto/xmss), it advances through any empty slots, applies the
// block, and confirms the block's committed state root matches the result.
// The caller's state is never mutated; on any error the returned state is nil.
func StateTransition(pre *types.State, signed *types.SignedBlock, validSignatures bool) (*types.State, error) {
	if !validSignatures {
		return nil, ErrInvalidSignature
	}

	block := &signed.Message

	mid, err := ProcessSlots(pre, block.Slot)
	if err != nil {
		return nil, fmt.Errorf("process slots: %w", err)
	}

	post, err := ProcessBlock(mid, block)
	if err != nil {
		return nil, fmt.Errorf("process block: %w", err)
	}

	postRoot, err := post.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("hash post-state: %w", err)
	}
	if postRoot != block.StateRoot {
		return nil, fmt.Errorf("%w: got %x, expected %x", ErrBadStateRoot, postRoot[:8], block.StateRoot[:8])
	}

	return post, nil
}

// ProcessBlock applies full block processing.
func ProcessBlock(s *types.State, block *types.Block) (*types.State, error) {
	state, err := ProcessBlockHeader(s, block)
	if err != nil {
		return nil, err
	}
	return ProcessAttestations(state, block.Body.Attestations)
}

// Copy creates a deep copy of the state.
func Copy(s *types.State) *types.State {
	return s.Copy()
}

// getBit returns the value of a bit at the given index.
// Returns false if index is out of bounds.
func getBit(bits []byte, index int) bool {
	bl := bitfield.Bitlist(bits)
	if uint64(index) >= bl.Len() {
		return false
	}
	return bl.BitAt(uint64(index))
}

// setBit sets a bit at the given index.
// If the bitlist needs to grow, it creates a new one with sufficient capacity.
func setBit(bits []byte, index int, val bool) []byte {
	bl := bitfield.Bitlist(bits)
	idx := uint64(index)

	if idx >= bl.Len() {
		newBl := bitfield.NewBitlist(idx + 1)
		for i := uint64(0); i < bl.Len(); i++ {
			if bl.BitAt(i) {
				newBl.SetBitAt(i, true)
			}
		}
		bl = newBl
	}

	bl.SetBitAt(idx, val)
	return bl
}

// appendBitAt appends a bit at the given index, extending the bitlist if needed.
func appendBitAt(bits []byte, index int, val bool) []byte {
	if len(bits) == 0 {
		bits = bitfield.NewBitlist(uint64(index) + 1)
	}
	return setBit(bits, index, val)
}
