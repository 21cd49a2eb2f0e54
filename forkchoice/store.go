package forkchoice

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/geanlabs/gean/consensus"
	"github.com/geanlabs/gean/crypto/xmss"
	"github.com/geanlabs/gean/storage"
	"github.com/geanlabs/gean/types"
)

// Store maintains fork choice state including blocks, states, and votes.
type Store struct {
	mu sync.RWMutex

	Time            uint64
	Config          types.Config
	Head            types.Root
	SafeTarget      types.Root
	LatestJustified types.Checkpoint
	LatestFinalized types.Checkpoint

	Blocks           map[types.Root]*types.Block
	States           map[types.Root]*types.State
	LatestKnownVotes []types.Checkpoint // indexed by ValidatorIndex
	LatestNewVotes   []types.Checkpoint // indexed by ValidatorIndex

	logger   *slog.Logger
	verifier xmss.Verifier
	persist  storage.Store
}

// StoreOption configures optional Store parameters.
type StoreOption func(*Store)

// WithLogger attaches a structured logger to the store for debug output.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithVerifier attaches the XMSS signature verification oracle used by
// ProcessSignedBlock. Defaults to xmss.NoopVerifier when not supplied.
func WithVerifier(v xmss.Verifier) StoreOption {
	return func(s *Store) { s.verifier = v }
}

// WithPersistence writes every inserted block and post-state through to the
// given durable store in addition to the in-memory maps the LMD-GHOST
// algorithm reads from directly. This Store only writes to it and never
// reads from it; NewStore always starts from the given anchor.
func WithPersistence(p storage.Store) StoreOption {
	return func(s *Store) { s.persist = p }
}

// NewStore creates a new fork choice store with the given genesis state and anchor block.
func NewStore(state *types.State, anchorBlock *types.Block, opts ...StoreOption) (*Store, error) {
	stateRoot, err := state.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("hash state: %w", err)
	}

	if anchorBlock.StateRoot != stateRoot {
		return nil, fmt.Errorf("anchor block state root mismatch")
	}

	anchorRoot, err := anchorBlock.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("hash anchor block: %w", err)
	}

	// Per leanSpec get_forkchoice_store: use state's checkpoints, not anchor block
	latestJustified := state.LatestJustified
	latestFinalized := state.LatestFinalized

	s := &Store{
		Time:             uint64(anchorBlock.Slot) * types.IntervalsPerSlot,
		Config:           state.Config,
		Head:             anchorRoot,
		SafeTarget:       anchorRoot,
		LatestJustified:  latestJustified,
		LatestFinalized:  latestFinalized,
		Blocks:           map[types.Root]*types.Block{anchorRoot: anchorBlock},
		States:           map[types.Root]*types.State{anchorRoot: state},
		LatestKnownVotes: make([]types.Checkpoint, state.Config.NumValidators),
		LatestNewVotes:   make([]types.Checkpoint, state.Config.NumValidators),
		verifier:         xmss.NoopVerifier{},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.persist != nil {
		s.persist.PutBlock(anchorRoot, anchorBlock)
		s.persist.PutState(anchorRoot, state)
	}

	return s, nil
}

// HasBlock checks if a block exists in the store.
func (s *Store) HasBlock(root types.Root) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.Blocks[root]
	return exists
}

// GetBlock retrieves a block from the store.
func (s *Store) GetBlock(root types.Root) (*types.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	block, exists := s.Blocks[root]
	return block, exists
}

// GetHead returns the current head block root.
func (s *Store) GetHead() types.Root {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Head
}

// GetLatestFinalized returns the latest finalized checkpoint.
func (s *Store) GetLatestFinalized() types.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LatestFinalized
}

// GetLatestJustified returns the latest justified checkpoint.
func (s *Store) GetLatestJustified() types.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LatestJustified
}

// ProcessBlock adds a new, already-trusted block and updates fork choice
// state. Used for self-produced blocks, where there is no signature to check
// since the node hasn't signed the envelope yet at this point in the
// pipeline. Network-sourced blocks should go through ProcessSignedBlock
// instead, which checks the signature via the store's xmss.Verifier.
func (s *Store) ProcessBlock(block *types.Block) error {
	blockHash, err := block.HashTreeRoot()
	if err != nil {
		return fmt.Errorf("hash block: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Skip if already known
	if _, exists := s.Blocks[blockHash]; exists {
		return nil
	}

	// Get parent state
	parentState, exists := s.States[block.ParentRoot]
	if !exists {
		return fmt.Errorf("%w: parent root %x", ErrParentNotFound, block.ParentRoot[:8])
	}

	// Apply state transition
	newState, err := consensus.ProcessSlots(parentState, block.Slot)
	if err != nil {
		return fmt.Errorf("process slots: %w", err)
	}
	newState, err = consensus.ProcessBlock(newState, block)
	if err != nil {
		return fmt.Errorf("process block: %w", err)
	}
	postRoot, err := newState.HashTreeRoot()
	if err != nil {
		return fmt.Errorf("hash post-state: %w", err)
	}
	if postRoot != block.StateRoot {
		return fmt.Errorf("%w: got %x, expected %x", consensus.ErrBadStateRoot, postRoot[:8], block.StateRoot[:8])
	}

	s.insertBlockLocked(blockHash, block, newState)
	return nil
}

// ProcessSignedBlock validates a network-sourced block's signature against
// the store's XMSS verification oracle, then runs the full
// consensus.StateTransition (which additionally confirms the block's
// declared state_root against the computed post-state) before inserting it.
func (s *Store) ProcessSignedBlock(signed *types.SignedBlock) error {
	block := &signed.Message

	blockHash, err := block.HashTreeRoot()
	if err != nil {
		return fmt.Errorf("hash block: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.Blocks[blockHash]; exists {
		return nil
	}

	parentState, exists := s.States[block.ParentRoot]
	if !exists {
		return fmt.Errorf("%w: parent root %x", ErrParentNotFound, block.ParentRoot[:8])
	}

	validSig := s.verifier.Verify(parentProposerPubkey(parentState, block.ProposerIndex), uint64(block.Slot), blockHash, signed.Signature)

	newState, err := consensus.StateTransition(parentState, signed, validSig)
	if err != nil {
		return fmt.Errorf("state transition: %w", err)
	}

	s.insertBlockLocked(blockHash, block, newState)
	if s.persist != nil {
		s.persist.PutSignedBlock(blockHash, signed)
	}
	return nil
}

// insertBlockLocked records a block and its post-state, folds its body
// attestations into known-vote tracking, and recomputes the head. Callers
// must already hold s.mu and have validated the block.
func (s *Store) insertBlockLocked(blockHash types.Root, block *types.Block, newState *types.State) {
	s.Blocks[blockHash] = block
	s.States[blockHash] = newState

	if s.persist != nil {
		s.persist.PutBlock(blockHash, block)
		s.persist.PutState(blockHash, newState)
	}

	// Process attestations carried in the block body. These come from a block
	// that already passed state transition (ProcessAttestations in consensus),
	// which enforces source/target validity against the block's own history;
	// fork-choice only needs to fold the resulting votes into known-vote tracking.
	for i := range block.Body.Attestations {
		signed := &block.Body.Attestations[i]
		s.processAttestationLocked(signed, true)
	}

	s.updateHeadLocked()
}

// parentProposerPubkey looks up the signing key for a proposer index in the
// parent state's validator registry. Returns the zero pubkey if out of
// range; the verifier oracle treats that as any other invalid key material.
func parentProposerPubkey(parentState *types.State, proposerIndex uint64) types.Pubkey {
	if proposerIndex >= uint64(len(parentState.Validators)) {
		return types.Pubkey{}
	}
	return parentState.Validators[proposerIndex].Pubkey
}

func (s *Store) updateHeadLocked() {
	if latest := GetLatestJustified(s.States); latest != nil {
		// Only update LatestJustified if we have the block in our store
		if _, exists := s.Blocks[latest.Root]; exists {
			s.LatestJustified = *latest
		}
	}

	s.Head = GetHead(s.Blocks, s.LatestJustified.Root, s.LatestKnownVotes, 0)

	if state, exists := s.States[s.Head]; exists {
		// Only update LatestFinalized if we have the block in our store
		if _, exists := s.Blocks[state.LatestFinalized.Root]; exists {
			s.LatestFinalized = state.LatestFinalized
		}
	}
}

func (s *Store) updateSafeTargetLocked() {
	minScore := int((s.Config.NumValidators*2 + 2) / 3) // ceiling division
	s.SafeTarget = GetHead(s.Blocks, s.LatestJustified.Root, s.LatestNewVotes, minScore)
}
