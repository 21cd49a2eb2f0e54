package consensus

import (
	"encoding/binary"

	"github.com/OffchainLabs/go-bitfield"
	"github.com/geanlabs/gean/types"
)

// GenerateValidators builds a deterministic placeholder validator registry of
// the given size. Each validator's pubkey is derived from its index so that
// every node in a devnet computes the same registry without a key ceremony.
// Real XMSS key loading replaces this once validator key management exists.
func GenerateValidators(n int) []types.Validator {
	validators := make([]types.Validator, n)
	for i := 0; i < n; i++ {
		var pubkey types.Pubkey
		binary.LittleEndian.PutUint64(pubkey[:8], uint64(i))
		validators[i] = types.Validator{
			Pubkey: pubkey,
			Index:  types.ValidatorIndex(i),
		}
	}
	return validators
}

// GenerateGenesis creates a genesis state and block for the given validator
// registry.
func GenerateGenesis(genesisTime uint64, validators []types.Validator) (*types.State, *types.Block) {
	emptyBody := types.BlockBody{Attestations: []types.SignedAttestation{}}
	bodyRoot, _ := emptyBody.HashTreeRoot()

	genesisHeader := types.BlockHeader{
		Slot:          0,
		ProposerIndex: 0,
		ParentRoot:    types.Root{},
		StateRoot:     types.Root{},
		BodyRoot:      bodyRoot,
	}

	// Genesis checkpoints use the zero root; the store handles this as a
	// special case since no block exists yet to hash.
	genesisCheckpoint := types.Checkpoint{Root: types.Root{}, Slot: 0}

	state := &types.State{
		Config: types.Config{
			NumValidators: uint64(len(validators)),
			GenesisTime:   genesisTime,
		},
		Slot:                     0,
		LatestBlockHeader:        genesisHeader,
		LatestJustified:          genesisCheckpoint,
		LatestFinalized:          genesisCheckpoint,
		HistoricalBlockHashes:    []types.Root{},
		JustifiedSlots:           bitfield.NewBitlist(1),
		Validators:               validators,
		JustificationsRoots:      []types.Root{},
		JustificationsValidators: bitfield.NewBitlist(0),
	}

	stateRoot, _ := state.HashTreeRoot()

	block := &types.Block{
		Slot:          0,
		ProposerIndex: 0,
		ParentRoot:    types.Root{},
		StateRoot:     stateRoot,
		Body:          emptyBody,
	}

	return state, block
}
