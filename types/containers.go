package types

// SSZ containers for the Lean Ethereum consensus protocol.
// Field order is critical for SSZ serialization and must match the spec exactly.
// The Marshal/Unmarshal/HashTreeRoot methods in ssz.go are hand-written in the
// same style sszgen would emit, since no generator can run here.

const (
	HistoricalRootsLimit   = 1 << 18 // 262144
	ValidatorRegistryLimit = 1 << 12 // 4096
)

// Checkpoint identifies a block at a specific slot in the chain.
// Used for justification and finalization tracking.
type Checkpoint struct {
	Root Root `ssz-size:"32"`
	Slot Slot
}

// Config holds immutable chain configuration parameters.
type Config struct {
	GenesisTime   uint64
	NumValidators uint64
}

// AttestationData describes a validator's observed chain view.
type AttestationData struct {
	Slot   Slot
	Head   Checkpoint
	Target Checkpoint
	Source Checkpoint
}

// Attestation wraps attestation data with the validator's identity.
// Separated from AttestationData to enable aggregation: multiple validators
// can attest to the same data (see the attestations package).
type Attestation struct {
	ValidatorID uint64
	Data        AttestationData
}

// SignedAttestation wraps an Attestation with its signature.
type SignedAttestation struct {
	Message   Attestation
	Signature Signature `ssz-size:"3112"`
}

// AggregatedAttestation groups SignedAttestations that share identical
// AttestationData into a single bitlist of participants.
type AggregatedAttestation struct {
	AggregationBits []byte `ssz:"bitlist" ssz-max:"4096"`
	Data            AttestationData
}

// Validator represents a validator's identity in the state registry.
type Validator struct {
	Pubkey Pubkey `ssz-size:"52"`
	Index  ValidatorIndex
}

// BlockHeader is the fixed-size portion of a block, used for parent chain linking.
// The StateRoot is initially zero and filled during ProcessSlots before slot advance.
type BlockHeader struct {
	Slot          Slot
	ProposerIndex uint64
	ParentRoot    Root `ssz-size:"32"`
	StateRoot     Root `ssz-size:"32"`
	BodyRoot      Root `ssz-size:"32"`
}

// BlockBody contains the variable-length block contents. Every attestation for
// a slot, including the proposer's own, travels here as a signed entry; there
// is no separate proposer-attestation envelope.
type BlockBody struct {
	Attestations []SignedAttestation `ssz-max:"4096"`
}

// Block is a consensus block containing header fields and a body.
type Block struct {
	Slot          Slot
	ProposerIndex uint64
	ParentRoot    Root `ssz-size:"32"`
	StateRoot     Root `ssz-size:"32"`
	Body          BlockBody
}

// SignedBlock is the top-level block envelope on the network.
type SignedBlock struct {
	Message   Block
	Signature Signature `ssz-size:"3112"`
}

// State is the full consensus state object.
// Field order must match the spec exactly for correct SSZ serialization.
type State struct {
	Config            Config
	Slot              Slot
	LatestBlockHeader BlockHeader

	LatestJustified Checkpoint
	LatestFinalized Checkpoint

	HistoricalBlockHashes []Root      `ssz-max:"262144" ssz-size:"?,32"` // List[Bytes32, HISTORICAL_ROOTS_LIMIT]
	JustifiedSlots        []byte      `ssz:"bitlist" ssz-max:"262144"`   // Bitlist[HISTORICAL_ROOTS_LIMIT]
	Validators            []Validator `ssz-max:"4096"`                  // List[Validator, VALIDATOR_REGISTRY_LIMIT]

	// JustificationsRoots/JustificationsValidators store the 3SF-mini tally as
	// a flattened bitlist: the chunk [i*VALIDATOR_REGISTRY_LIMIT, (i+1)*VALIDATOR_REGISTRY_LIMIT)
	// of JustificationsValidators is the per-validator vote tally for
	// JustificationsRoots[i]. The chunk is sized to the fixed registry limit,
	// not NumValidators, so the layout never changes shape as validators join.
	JustificationsRoots      []Root `ssz-max:"262144" ssz-size:"?,32"`
	JustificationsValidators []byte `ssz:"bitlist" ssz-max:"1073741824"` // Bitlist[HISTORICAL_ROOTS_LIMIT * VALIDATOR_REGISTRY_LIMIT]
}

// Copy returns a deep copy of the state, safe for independent mutation.
func (s *State) Copy() *State {
	cp := *s
	cp.HistoricalBlockHashes = append([]Root(nil), s.HistoricalBlockHashes...)
	cp.JustifiedSlots = append([]byte(nil), s.JustifiedSlots...)
	cp.Validators = append([]Validator(nil), s.Validators...)
	cp.JustificationsRoots = append([]Root(nil), s.JustificationsRoots...)
	cp.JustificationsValidators = append([]byte(nil), s.JustificationsValidators...)
	return &cp
}
