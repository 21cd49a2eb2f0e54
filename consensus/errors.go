package consensus

import "errors"

// Sentinel errors for state transition failures. All are fatal to the block
// under transition except where noted; none mutate the caller's state, since
// every consensus function here returns a fresh *types.State or an error.
var (
	ErrSlotMismatch     = errors.New("block slot does not match pre-state slot")
	ErrStaleBlock       = errors.New("block slot not newer than latest block header")
	ErrWrongProposer    = errors.New("proposer index does not match round-robin schedule")
	ErrParentMismatch   = errors.New("parent root does not match latest block header root")
	ErrBackwardSlot     = errors.New("process_slots target slot must exceed current slot")
	ErrBadStateRoot     = errors.New("block state root does not match computed post-state root")
	ErrInvalidSignature = errors.New("block signature did not verify")
)
