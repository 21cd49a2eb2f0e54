package consensus

import (
	"errors"
	"testing"

	"github.com/geanlabs/gean/types"
)

func testValidators(n int) []types.Validator {
	vs := make([]types.Validator, n)
	for i := range vs {
		vs[i] = types.Validator{Index: types.ValidatorIndex(i)}
	}
	return vs
}

// buildBlockAt advances pre to targetSlot via ProcessSlots, then constructs a
// correctly-proposed, correctly-state-rooted block at that slot with the
// given attestations. Returns the block and the post-state it commits to.
func buildBlockAt(t *testing.T, pre *types.State, targetSlot types.Slot, atts []types.SignedAttestation) (*types.Block, *types.State) {
	t.Helper()

	mid, err := ProcessSlots(pre, targetSlot)
	if err != nil {
		t.Fatalf("ProcessSlots: %v", err)
	}

	parentRoot, err := mid.LatestBlockHeader.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash parent header: %v", err)
	}

	proposer := uint64(targetSlot) % mid.Config.NumValidators
	block := &types.Block{
		Slot:          targetSlot,
		ProposerIndex: proposer,
		ParentRoot:    parentRoot,
		Body:          types.BlockBody{Attestations: atts},
	}

	post, err := ProcessBlock(mid, block)
	if err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}

	postRoot, err := post.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash post: %v", err)
	}
	block.StateRoot = postRoot

	return block, post
}

// S1. Slot-gap block: genesis at slot 0, block at slot 5.
func TestStateTransition_SlotGapBlock(t *testing.T) {
	pre, genesisBlock := GenerateGenesis(0, testValidators(10))
	// process_slot fills the header's state_root before the header is hashed.
	genesisHeader := pre.LatestBlockHeader
	preRoot, err := pre.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash genesis state: %v", err)
	}
	genesisHeader.StateRoot = preRoot
	genesisHeaderRoot, err := genesisHeader.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash genesis header: %v", err)
	}

	block, post := buildBlockAt(t, pre, 5, nil)

	if block.ProposerIndex != 5 {
		t.Fatalf("expected proposer 5, got %d", block.ProposerIndex)
	}
	if post.Slot != 5 {
		t.Fatalf("expected post slot 5, got %d", post.Slot)
	}

	wantHashes := []types.Root{genesisHeaderRoot, {}, {}, {}, {}}
	if len(post.HistoricalBlockHashes) != len(wantHashes) {
		t.Fatalf("expected %d historical hashes, got %d", len(wantHashes), len(post.HistoricalBlockHashes))
	}
	for i, want := range wantHashes {
		if post.HistoricalBlockHashes[i] != want {
			t.Errorf("historical_block_hashes[%d] = %x, want %x", i, post.HistoricalBlockHashes[i], want)
		}
	}

	if !getBit(post.JustifiedSlots, 0) {
		t.Error("slot 0 should be justified (genesis)")
	}
	for i := 1; i < 5; i++ {
		if getBit(post.JustifiedSlots, i) {
			t.Errorf("slot %d should not be justified", i)
		}
	}

	_ = genesisBlock
}

// S2. First-block bootstrap: genesis -> block at slot 1 by proposer 1.
func TestStateTransition_FirstBlockBootstrap(t *testing.T) {
	pre, _ := GenerateGenesis(0, testValidators(10))
	// process_slot fills the header's state_root before the header is hashed.
	genesisHeader := pre.LatestBlockHeader
	preRoot, err := pre.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash genesis state: %v", err)
	}
	genesisHeader.StateRoot = preRoot
	genesisHeaderRoot, err := genesisHeader.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash genesis header: %v", err)
	}

	_, post := buildBlockAt(t, pre, 1, nil)

	if post.LatestJustified.Root != genesisHeaderRoot {
		t.Errorf("latest_justified.root = %x, want genesis header root %x", post.LatestJustified.Root, genesisHeaderRoot)
	}
	if post.LatestFinalized.Root != genesisHeaderRoot {
		t.Errorf("latest_finalized.root = %x, want genesis header root %x", post.LatestFinalized.Root, genesisHeaderRoot)
	}
	if len(post.HistoricalBlockHashes) != 1 || post.HistoricalBlockHashes[0] != genesisHeaderRoot {
		t.Errorf("historical_block_hashes = %v, want [genesis header root]", post.HistoricalBlockHashes)
	}
	if !getBit(post.JustifiedSlots, 0) {
		t.Error("slot 0 should be justified")
	}
}

// S3. Wrong proposer is rejected and the caller's state is untouched.
func TestStateTransition_WrongProposerRejected(t *testing.T) {
	pre, _ := GenerateGenesis(0, testValidators(10))
	preSlot := pre.Slot

	mid, err := ProcessSlots(pre, 1)
	if err != nil {
		t.Fatalf("ProcessSlots: %v", err)
	}
	parentRoot, err := mid.LatestBlockHeader.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash parent: %v", err)
	}

	block := &types.Block{
		Slot:          1,
		ProposerIndex: 2, // wrong: slot 1 mod 10 == 1
		ParentRoot:    parentRoot,
		Body:          types.BlockBody{Attestations: nil},
	}

	_, err = ProcessBlock(mid, block)
	if !errors.Is(err, ErrWrongProposer) {
		t.Fatalf("expected ErrWrongProposer, got %v", err)
	}

	if pre.Slot != preSlot {
		t.Error("caller's state must be unchanged after a rejected block")
	}
}

// S4. 2/3 majority justifies the target; finalization does not advance
// because every intermediate slot is itself justifiable (delta <= 5).
//
// Votes reference a checkpoint at slot 4 from a chain that has already
// advanced past it, so historical_block_hashes[4] is populated by the time
// the votes are validated (avoiding the self-referential in-flight case,
// which is exercised separately).
func TestStateTransition_JustificationMajority(t *testing.T) {
	numValidators := 7
	state, _ := GenerateGenesis(0, testValidators(numValidators))

	var genesisFinalizedRoot types.Root
	for slot := types.Slot(1); slot <= 4; slot++ {
		block, post := buildBlockAt(t, state, slot, nil)
		if slot == 1 {
			genesisFinalizedRoot = post.LatestFinalized.Root
		}
		_ = block
		state = post
	}

	// Process block 5's header only, so historical_block_hashes[4] (the
	// hash of block 4's header) becomes available, then hand-build the
	// attestations before running the 3SF-mini core.
	mid5, err := ProcessSlots(state, 5)
	if err != nil {
		t.Fatalf("ProcessSlots: %v", err)
	}
	parentRoot5, err := mid5.LatestBlockHeader.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash parent: %v", err)
	}
	header5, err := ProcessBlockHeader(mid5, &types.Block{
		Slot:          5,
		ProposerIndex: 5 % uint64(numValidators),
		ParentRoot:    parentRoot5,
		Body:          types.BlockBody{},
	})
	if err != nil {
		t.Fatalf("ProcessBlockHeader: %v", err)
	}

	if len(header5.HistoricalBlockHashes) <= 4 {
		t.Fatalf("expected historical_block_hashes to include index 4, got len %d", len(header5.HistoricalBlockHashes))
	}

	source := types.Checkpoint{Root: genesisFinalizedRoot, Slot: 0}
	target := types.Checkpoint{Root: header5.HistoricalBlockHashes[4], Slot: 4}

	makeAtt := func(validatorID uint64) types.SignedAttestation {
		return types.SignedAttestation{
			Message: types.Attestation{
				ValidatorID: validatorID,
				Data: types.AttestationData{
					Slot:   4,
					Head:   target,
					Target: target,
					Source: source,
				},
			},
		}
	}

	atts := []types.SignedAttestation{
		makeAtt(0), makeAtt(1), makeAtt(2), makeAtt(3), makeAtt(4),
	}

	post, err := ProcessAttestations(header5, atts)
	if err != nil {
		t.Fatalf("ProcessAttestations: %v", err)
	}

	if post.LatestJustified != target {
		t.Errorf("latest_justified = %+v, want %+v", post.LatestJustified, target)
	}
	if !getBit(post.JustifiedSlots, 4) {
		t.Error("slot 4 should be marked justified")
	}

	justifications := GetJustifications(post)
	if _, exists := justifications[target.Root]; exists {
		t.Error("tally for the justified target should be dropped")
	}

	// Finalization must NOT advance: slots 1,2,3 are each within delta<=5 of
	// finalized (slot 0), so they are justifiable and block finalization.
	if post.LatestFinalized != source {
		t.Errorf("latest_finalized should remain at genesis (%+v), got %+v", source, post.LatestFinalized)
	}
}

// A vote targeting the in-flight block header (not yet in history) is valid
// per spec section 4.2.1 validation 4's second clause.
func TestProcessAttestations_InFlightTargetAccepted(t *testing.T) {
	numValidators := 4
	pre, _ := GenerateGenesis(0, testValidators(numValidators))

	mid, err := ProcessSlots(pre, 1)
	if err != nil {
		t.Fatalf("ProcessSlots: %v", err)
	}
	parentRoot, err := mid.LatestBlockHeader.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash parent: %v", err)
	}

	headerState, err := ProcessBlockHeader(mid, &types.Block{
		Slot:          1,
		ProposerIndex: 1 % uint64(numValidators),
		ParentRoot:    parentRoot,
		Body:          types.BlockBody{},
	})
	if err != nil {
		t.Fatalf("ProcessBlockHeader: %v", err)
	}

	inFlightRoot, err := headerState.LatestBlockHeader.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash in-flight header: %v", err)
	}

	// This is the first-ever block, so ProcessBlockHeader's bootstrap special
	// case already points latest_justified/finalized and
	// historical_block_hashes[0] at the genesis header's root (parentRoot),
	// not the zero root.
	source := types.Checkpoint{Root: parentRoot, Slot: 0}
	target := types.Checkpoint{Root: inFlightRoot, Slot: 1}

	atts := []types.SignedAttestation{
		{Message: types.Attestation{ValidatorID: 0, Data: types.AttestationData{Slot: 1, Head: target, Target: target, Source: source}}},
		{Message: types.Attestation{ValidatorID: 1, Data: types.AttestationData{Slot: 1, Head: target, Target: target, Source: source}}},
		{Message: types.Attestation{ValidatorID: 2, Data: types.AttestationData{Slot: 1, Head: target, Target: target, Source: source}}},
	}

	post, err := ProcessAttestations(headerState, atts)
	if err != nil {
		t.Fatalf("ProcessAttestations: %v", err)
	}

	if post.LatestJustified != target {
		t.Errorf("expected in-flight target to justify, got latest_justified=%+v", post.LatestJustified)
	}
}

func TestIsJustifiableAfter_TruthSet(t *testing.T) {
	// Spec section 8 property 3: truth set counted from `finalized` begins
	// {0,1,2,3,4,5,6,9,12,16,20,25,30,36,42,49,56,64,...}
	want := map[uint64]bool{
		0: true, 1: true, 2: true, 3: true, 4: true, 5: true,
		6: true, 9: true, 12: true, 16: true, 20: true, 25: true,
		30: true, 36: true, 42: true, 49: true, 56: true, 64: true,
		7: false, 8: false, 10: false, 11: false, 13: false,
	}
	for delta, expect := range want {
		target := types.Slot(100 + delta)
		finalized := types.Slot(100)
		got := target.IsJustifiableAfter(finalized)
		if got != expect {
			t.Errorf("IsJustifiableAfter(delta=%d) = %v, want %v", delta, got, expect)
		}
	}
}

// Spec section 8 property 4: process_slots never changes justified,
// finalized, or historical_block_hashes.
func TestProcessSlots_PreservesFinalityFields(t *testing.T) {
	pre, _ := GenerateGenesis(0, testValidators(10))
	_, post := buildBlockAt(t, pre, 3, nil)

	advanced, err := ProcessSlots(post, post.Slot+5)
	if err != nil {
		t.Fatalf("ProcessSlots: %v", err)
	}

	if advanced.LatestJustified != post.LatestJustified {
		t.Error("ProcessSlots changed latest_justified")
	}
	if advanced.LatestFinalized != post.LatestFinalized {
		t.Error("ProcessSlots changed latest_finalized")
	}
	if len(advanced.HistoricalBlockHashes) != len(post.HistoricalBlockHashes) {
		t.Error("ProcessSlots changed historical_block_hashes")
	}
	for i := range post.HistoricalBlockHashes {
		if advanced.HistoricalBlockHashes[i] != post.HistoricalBlockHashes[i] {
			t.Error("ProcessSlots changed a historical_block_hashes entry")
		}
	}
}

func TestProcessSlots_BackwardSlotRejected(t *testing.T) {
	pre, _ := GenerateGenesis(0, testValidators(10))
	_, err := ProcessSlots(pre, pre.Slot)
	if !errors.Is(err, ErrBackwardSlot) {
		t.Fatalf("expected ErrBackwardSlot, got %v", err)
	}
}

func TestStateTransition_BadStateRootRejected(t *testing.T) {
	pre, _ := GenerateGenesis(0, testValidators(10))
	mid, err := ProcessSlots(pre, 1)
	if err != nil {
		t.Fatalf("ProcessSlots: %v", err)
	}
	parentRoot, err := mid.LatestBlockHeader.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash parent: %v", err)
	}

	block := &types.Block{
		Slot:          1,
		ProposerIndex: 1 % 10,
		ParentRoot:    parentRoot,
		StateRoot:     types.Root{0xFF}, // deliberately wrong
		Body:          types.BlockBody{},
	}
	signed := &types.SignedBlock{Message: *block}

	_, err = StateTransition(pre, signed, true)
	if !errors.Is(err, ErrBadStateRoot) {
		t.Fatalf("expected ErrBadStateRoot, got %v", err)
	}
}

func TestStateTransition_InvalidSignatureRejected(t *testing.T) {
	pre, _ := GenerateGenesis(0, testValidators(10))
	signed := &types.SignedBlock{Message: types.Block{Slot: 1}}

	_, err := StateTransition(pre, signed, false)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}
