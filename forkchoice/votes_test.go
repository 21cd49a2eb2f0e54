package forkchoice

import (
	"errors"
	"testing"

	"github.com/geanlabs/gean/consensus"
	"github.com/geanlabs/gean/types"
)

// storeWithOneBlock returns a store holding genesis plus one inserted block
// at slot 1, along with both roots, for attestation tests that need a real
// target/head to vote on.
func storeWithOneBlock(t *testing.T) (store *Store, blockRoot, genesisRoot types.Root) {
	t.Helper()
	store = newTestStore(t, 8)
	genesisRoot = store.Head

	block := proposeAt(t, store, 1, nil)
	blockRoot = mustInsert(t, store, block)
	return store, blockRoot, genesisRoot
}

func attestation(validatorID uint64, slot types.Slot, head, target, source types.Checkpoint) *types.SignedAttestation {
	return &types.SignedAttestation{
		Message: types.Attestation{
			ValidatorID: validatorID,
			Data: types.AttestationData{
				Slot:   slot,
				Head:   head,
				Target: target,
				Source: source,
			},
		},
	}
}

func TestValidateAttestation(t *testing.T) {
	store, blockRoot, genesisRoot := storeWithOneBlock(t)
	genesisCheckpoint := types.Checkpoint{Root: types.Root{}, Slot: 0}
	blockCheckpoint := types.Checkpoint{Root: blockRoot, Slot: 1}

	cases := []struct {
		name    string
		att     *types.SignedAttestation
		wantErr error // nil means no error expected
	}{
		{
			name: "valid vote for the known block, genesis source",
			att:  attestation(0, 1, blockCheckpoint, blockCheckpoint, genesisCheckpoint),
		},
		{
			name: "valid vote sourcing the actual genesis root",
			att:  attestation(0, 1, blockCheckpoint, blockCheckpoint, types.Checkpoint{Root: genesisRoot, Slot: 0}),
		},
		{
			name:    "target root unknown to the store",
			att:     attestation(0, 1, blockCheckpoint, types.Checkpoint{Root: types.Root{0xff}, Slot: 1}, genesisCheckpoint),
			wantErr: ErrTargetNotFound,
		},
		{
			name:    "source slot after target slot",
			att:     attestation(0, 1, blockCheckpoint, types.Checkpoint{Root: genesisRoot, Slot: 0}, blockCheckpoint),
			wantErr: ErrSlotMismatch,
		},
		{
			name:    "vote far enough in the future to be rejected",
			att:     attestation(0, 9999, blockCheckpoint, blockCheckpoint, genesisCheckpoint),
			wantErr: ErrFutureVote,
		},
		{
			name:    "head root unknown to the store",
			att:     attestation(0, 1, types.Checkpoint{Root: types.Root{0xaa}, Slot: 1}, blockCheckpoint, genesisCheckpoint),
			wantErr: ErrHeadNotFound,
		},
		{
			name:    "validator index at the registry boundary is out of range",
			att:     attestation(uint64(len(store.LatestKnownVotes)), 1, blockCheckpoint, blockCheckpoint, genesisCheckpoint),
			wantErr: ErrValidatorOutOfRange,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := store.ValidateAttestation(tc.att)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got: %v", tc.wantErr, err)
			}
		})
	}
}

func TestProcessAttestationLocked_OutOfRangeValidatorDoesNotPanic(t *testing.T) {
	store, blockRoot, _ := storeWithOneBlock(t)
	genesisCheckpoint := types.Checkpoint{Root: types.Root{}, Slot: 0}
	blockCheckpoint := types.Checkpoint{Root: blockRoot, Slot: 1}

	farOutOfRange := uint64(len(store.LatestKnownVotes)) + 10
	signed := attestation(farOutOfRange, 1, blockCheckpoint, blockCheckpoint, genesisCheckpoint)

	// Both the gossip path (fromBlock=false) and the in-block path
	// (fromBlock=true) must silently ignore an index this invalid rather
	// than panic on an out-of-bounds slice write.
	store.processAttestationLocked(signed, false)
	store.processAttestationLocked(signed, true)
}

func TestProcessAttestation_BlockPathUpdatesKnownVotes(t *testing.T) {
	store := newTestStore(t, 8)
	genesisCheckpoint := types.Checkpoint{Root: types.Root{}, Slot: 0}

	headState := store.States[store.Head]
	advanced, err := consensus.ProcessSlots(headState, 1)
	if err != nil {
		t.Fatalf("ProcessSlots: %v", err)
	}

	block := &types.Block{
		Slot:          1,
		ProposerIndex: uint64(1) % uint64(len(headState.Validators)),
		ParentRoot:    store.Head,
	}
	blockRoot, err := block.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash block: %v", err)
	}
	blockCheckpoint := types.Checkpoint{Root: blockRoot, Slot: 1}
	block.Body.Attestations = []types.SignedAttestation{
		*attestation(2, 1, blockCheckpoint, blockCheckpoint, genesisCheckpoint),
	}

	postState, err := consensus.ProcessBlock(advanced, block)
	if err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}
	stateRoot, err := postState.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash post-state: %v", err)
	}
	block.StateRoot = stateRoot

	if err := store.ProcessBlock(block); err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}

	if store.LatestKnownVotes[2].Root.IsZero() {
		t.Error("validator 2's known vote should be set from the attestation carried in the block body")
	}
}

func TestProcessAttestation_GossipPathUpdatesNewVotesOnly(t *testing.T) {
	store, blockRoot, _ := storeWithOneBlock(t)
	genesisCheckpoint := types.Checkpoint{Root: types.Root{}, Slot: 0}
	blockCheckpoint := types.Checkpoint{Root: blockRoot, Slot: 1}

	// Move the clock far enough past slot 1 that the vote isn't rejected
	// as a future vote.
	store.AdvanceTime(store.Config.GenesisTime+8, false)

	signed := attestation(3, 1, blockCheckpoint, blockCheckpoint, genesisCheckpoint)
	if err := store.ProcessAttestation(signed); err != nil {
		t.Fatalf("ProcessAttestation: %v", err)
	}

	if store.LatestNewVotes[3].Root != blockRoot {
		t.Error("a gossiped attestation should land in LatestNewVotes, matching the voted target")
	}
	if !store.LatestKnownVotes[3].Root.IsZero() {
		t.Error("a gossiped attestation must not be promoted to LatestKnownVotes until acceptNewVotesLocked runs")
	}
}

func TestAcceptNewVotes_PromotesPendingVotesToKnown(t *testing.T) {
	store, blockRoot, _ := storeWithOneBlock(t)
	pending := types.Checkpoint{Root: blockRoot, Slot: 1}
	store.LatestNewVotes[5] = pending

	store.mu.Lock()
	store.acceptNewVotesLocked()
	store.mu.Unlock()

	if store.LatestKnownVotes[5] != pending {
		t.Error("a pending new vote should be promoted into LatestKnownVotes on acceptance")
	}
	if !store.LatestNewVotes[5].Root.IsZero() {
		t.Error("the new-votes slot should be cleared once its vote has been accepted")
	}
}
