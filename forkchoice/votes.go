package forkchoice

import (
	"fmt"

	"github.com/geanlabs/gean/types"
)

// ValidateAttestation validates an attestation against current store state.
func (s *Store) ValidateAttestation(signed *types.SignedAttestation) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validateAttestationLocked(signed)
}

func (s *Store) validateAttestationLocked(signed *types.SignedAttestation) error {
	att := signed.Message
	data := att.Data

	if att.ValidatorID >= uint64(len(s.LatestKnownVotes)) {
		return fmt.Errorf("%w: validator %d, count %d",
			ErrValidatorOutOfRange, att.ValidatorID, len(s.LatestKnownVotes))
	}

	targetBlock, exists := s.Blocks[data.Target.Root]
	if !exists {
		return fmt.Errorf("%w: target root %x", ErrTargetNotFound, data.Target.Root[:8])
	}

	var sourceSlot types.Slot
	if data.Source.Root.IsZero() {
		if data.Source.Slot != 0 {
			return fmt.Errorf("%w: genesis source must have slot 0, got %d",
				ErrSlotMismatch, data.Source.Slot)
		}
		sourceSlot = 0
	} else {
		sourceBlock, exists := s.Blocks[data.Source.Root]
		if !exists {
			return fmt.Errorf("%w: source root %x", ErrSourceNotFound, data.Source.Root[:8])
		}
		sourceSlot = sourceBlock.Slot

		if sourceSlot != data.Source.Slot {
			return fmt.Errorf("%w: source block slot %d != checkpoint slot %d",
				ErrSlotMismatch, sourceSlot, data.Source.Slot)
		}
	}

	if sourceSlot > targetBlock.Slot {
		return fmt.Errorf("%w: source slot %d > target block slot %d",
			ErrSlotMismatch, sourceSlot, targetBlock.Slot)
	}
	if data.Source.Slot > data.Target.Slot {
		return fmt.Errorf("%w: source slot %d > target slot %d",
			ErrSlotMismatch, data.Source.Slot, data.Target.Slot)
	}
	if targetBlock.Slot != data.Target.Slot {
		return fmt.Errorf("%w: target block slot %d != checkpoint slot %d",
			ErrSlotMismatch, targetBlock.Slot, data.Target.Slot)
	}

	if !data.Head.Root.IsZero() {
		if _, exists := s.Blocks[data.Head.Root]; !exists {
			return fmt.Errorf("%w: head root %x", ErrHeadNotFound, data.Head.Root[:8])
		}
	}

	currentSlot := types.Slot(s.Time / types.IntervalsPerSlot)
	if data.Slot > currentSlot+1 {
		return fmt.Errorf("%w: attestation slot %d too far ahead (current: %d)",
			ErrFutureVote, data.Slot, currentSlot)
	}

	return nil
}

// ProcessAttestation handles a new attestation from network gossip.
func (s *Store) ProcessAttestation(signed *types.SignedAttestation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateAttestationLocked(signed); err != nil {
		return err
	}
	s.processAttestationLocked(signed, false)
	return nil
}

// processAttestationLocked records a validator's vote. Attestations carried in a
// block update LatestKnownVotes directly (and clear any superseded gossip vote);
// attestations from gossip land in LatestNewVotes until the next interval-3 tick
// promotes them (see acceptNewVotesLocked). Out-of-range validator indices are
// ignored rather than panicking, since a malicious or stale peer can present one.
func (s *Store) processAttestationLocked(signed *types.SignedAttestation, isFromBlock bool) {
	att := signed.Message
	idx := att.ValidatorID
	if idx >= uint64(len(s.LatestKnownVotes)) {
		return
	}

	if isFromBlock {
		known := s.LatestKnownVotes[idx]
		if known.Root.IsZero() || known.Slot < att.Data.Target.Slot {
			s.LatestKnownVotes[idx] = att.Data.Target
		}
		newVote := s.LatestNewVotes[idx]
		if !newVote.Root.IsZero() && newVote.Slot < att.Data.Target.Slot {
			s.LatestNewVotes[idx] = types.Checkpoint{}
		}
	} else {
		newVote := s.LatestNewVotes[idx]
		if newVote.Root.IsZero() || newVote.Slot < att.Data.Target.Slot {
			s.LatestNewVotes[idx] = att.Data.Target
		}
	}
}

func (s *Store) acceptNewVotesLocked() {
	for i, vote := range s.LatestNewVotes {
		if !vote.Root.IsZero() {
			s.LatestKnownVotes[i] = vote
			s.LatestNewVotes[i] = types.Checkpoint{}
		}
	}
	s.updateHeadLocked()
}

// maxVoteAgeSlots bounds how stale a known vote may be before it's evicted at
// the top of a slot with a proposal. Prevents a validator that went offline
// long ago from permanently weighing in on LMD-GHOST.
const maxVoteAgeSlots = types.Slot(32)

// evictStaleVotesLocked drops known votes whose target is more than
// maxVoteAgeSlots behind the current slot.
func (s *Store) evictStaleVotesLocked() {
	currentSlot := types.Slot(s.Time / types.IntervalsPerSlot)
	for i, vote := range s.LatestKnownVotes {
		if vote.Root.IsZero() {
			continue
		}
		if currentSlot > vote.Slot && currentSlot-vote.Slot > maxVoteAgeSlots {
			s.LatestKnownVotes[i] = types.Checkpoint{}
		}
	}
}

// isAncestorLocked reports whether candidate lies on descendant's parent chain
// (candidate itself counts as its own ancestor). Never crosses the zero-parent
// genesis boundary.
func (s *Store) isAncestorLocked(candidate, descendant types.Root) bool {
	cur := descendant
	for {
		if cur == candidate {
			return true
		}
		block, ok := s.Blocks[cur]
		if !ok || block.ParentRoot.IsZero() {
			return false
		}
		cur = block.ParentRoot
	}
}

// getVoteTargetLocked computes the attestation target checkpoint: starting at
// head, walk the parent chain until a block satisfies all three predicates —
// freshness backoff, ancestry of safe_target, and justifiability from the
// latest finalized slot — never crossing the zero-parent genesis boundary.
func (s *Store) getVoteTargetLocked() types.Checkpoint {
	currentSlot := types.Slot(s.Time / types.IntervalsPerSlot)
	targetRoot := s.Head

	for {
		block := s.Blocks[targetRoot]
		if block.Slot+2 <= currentSlot &&
			s.isAncestorLocked(targetRoot, s.SafeTarget) &&
			block.Slot.IsJustifiableAfter(s.LatestFinalized.Slot) {
			break
		}
		if block.ParentRoot.IsZero() {
			break
		}
		targetRoot = block.ParentRoot
	}

	block := s.Blocks[targetRoot]
	blockRoot, _ := block.HashTreeRoot()
	return types.Checkpoint{Root: blockRoot, Slot: block.Slot}
}
