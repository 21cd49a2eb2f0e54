package types

import (
	"encoding/binary"
	"fmt"

	"github.com/geanlabs/gean/common/ssz"
)

// Hand-written SSZ Marshal/Unmarshal/HashTreeRoot methods, in the style
// sszgen would generate, since no generator run is possible here. Offsets are
// little-endian uint32s per the SSZ spec; fixed-size fields are inlined,
// variable-size fields reserve a 4-byte offset in the fixed section and their
// contents follow in declaration order.

const offsetSize = 4

func writeOffset(dst []byte, offset int) {
	binary.LittleEndian.PutUint32(dst, uint32(offset))
}

func readOffset(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}

// --- Checkpoint (fixed, 40 bytes) ---

func (c *Checkpoint) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 40)
	copy(buf[0:32], c.Root[:])
	binary.LittleEndian.PutUint64(buf[32:40], uint64(c.Slot))
	return buf, nil
}

func (c *Checkpoint) UnmarshalSSZ(buf []byte) error {
	if len(buf) != 40 {
		return fmt.Errorf("checkpoint: %w: got %d bytes", ErrFixedSizeMismatch, len(buf))
	}
	copy(c.Root[:], buf[0:32])
	c.Slot = Slot(binary.LittleEndian.Uint64(buf[32:40]))
	return nil
}

func (c *Checkpoint) HashTreeRoot() (Root, error) {
	return ssz.HashNodes(c.Root, ssz.HashTreeRootUint64(uint64(c.Slot))), nil
}

// --- Config (fixed, 16 bytes) ---

func (c *Config) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], c.GenesisTime)
	binary.LittleEndian.PutUint64(buf[8:16], c.NumValidators)
	return buf, nil
}

func (c *Config) UnmarshalSSZ(buf []byte) error {
	if len(buf) != 16 {
		return fmt.Errorf("config: %w: got %d bytes", ErrFixedSizeMismatch, len(buf))
	}
	c.GenesisTime = binary.LittleEndian.Uint64(buf[0:8])
	c.NumValidators = binary.LittleEndian.Uint64(buf[8:16])
	return nil
}

func (c *Config) HashTreeRoot() (Root, error) {
	return ssz.HashNodes(ssz.HashTreeRootUint64(c.GenesisTime), ssz.HashTreeRootUint64(c.NumValidators)), nil
}

// --- AttestationData (fixed, 128 bytes) ---

func (a *AttestationData) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 128)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(a.Slot))
	head, err := a.Head.MarshalSSZ()
	if err != nil {
		return nil, err
	}
	copy(buf[8:48], head)
	target, err := a.Target.MarshalSSZ()
	if err != nil {
		return nil, err
	}
	copy(buf[48:88], target)
	source, err := a.Source.MarshalSSZ()
	if err != nil {
		return nil, err
	}
	copy(buf[88:128], source)
	return buf, nil
}

func (a *AttestationData) UnmarshalSSZ(buf []byte) error {
	if len(buf) != 128 {
		return fmt.Errorf("attestation data: %w: got %d bytes", ErrFixedSizeMismatch, len(buf))
	}
	a.Slot = Slot(binary.LittleEndian.Uint64(buf[0:8]))
	if err := a.Head.UnmarshalSSZ(buf[8:48]); err != nil {
		return err
	}
	if err := a.Target.UnmarshalSSZ(buf[48:88]); err != nil {
		return err
	}
	return a.Source.UnmarshalSSZ(buf[88:128])
}

func (a *AttestationData) HashTreeRoot() (Root, error) {
	head, err := a.Head.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	target, err := a.Target.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	source, err := a.Source.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	slotTarget := ssz.HashNodes(ssz.HashTreeRootUint64(uint64(a.Slot)), head)
	sourceSource := ssz.HashNodes(target, source)
	return ssz.HashNodes(slotTarget, sourceSource), nil
}

// --- Attestation (fixed, 136 bytes) ---

func (a *Attestation) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 136)
	binary.LittleEndian.PutUint64(buf[0:8], a.ValidatorID)
	data, err := a.Data.MarshalSSZ()
	if err != nil {
		return nil, err
	}
	copy(buf[8:136], data)
	return buf, nil
}

func (a *Attestation) UnmarshalSSZ(buf []byte) error {
	if len(buf) != 136 {
		return fmt.Errorf("attestation: %w: got %d bytes", ErrFixedSizeMismatch, len(buf))
	}
	a.ValidatorID = binary.LittleEndian.Uint64(buf[0:8])
	return a.Data.UnmarshalSSZ(buf[8:136])
}

func (a *Attestation) HashTreeRoot() (Root, error) {
	data, err := a.Data.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	return ssz.HashNodes(ssz.HashTreeRootUint64(a.ValidatorID), data), nil
}

// --- SignedAttestation (fixed, 3248 bytes) ---

func (s *SignedAttestation) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 3248)
	msg, err := s.Message.MarshalSSZ()
	if err != nil {
		return nil, err
	}
	copy(buf[0:136], msg)
	copy(buf[136:3248], s.Signature[:])
	return buf, nil
}

func (s *SignedAttestation) UnmarshalSSZ(buf []byte) error {
	if len(buf) != 3248 {
		return fmt.Errorf("signed attestation: %w: got %d bytes", ErrFixedSizeMismatch, len(buf))
	}
	if err := s.Message.UnmarshalSSZ(buf[0:136]); err != nil {
		return err
	}
	copy(s.Signature[:], buf[136:3248])
	return nil
}

func (s *SignedAttestation) HashTreeRoot() (Root, error) {
	msg, err := s.Message.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	sigRoot := ssz.Merkleize(ssz.PackBytes(s.Signature[:]), 0)
	return ssz.HashNodes(msg, sigRoot), nil
}

// --- AggregatedAttestation (variable: bitlist + fixed data) ---

func (a *AggregatedAttestation) MarshalSSZ() ([]byte, error) {
	fixed := make([]byte, 4+128)
	writeOffset(fixed[0:4], 4+128)
	data, err := a.Data.MarshalSSZ()
	if err != nil {
		return nil, err
	}
	copy(fixed[4:132], data)
	return append(fixed, a.AggregationBits...), nil
}

func (a *AggregatedAttestation) UnmarshalSSZ(buf []byte) error {
	if len(buf) < 4+128 {
		return fmt.Errorf("aggregated attestation: %w: buffer too short", ErrOffsetOutOfRange)
	}
	off := readOffset(buf[0:4])
	if int(off) != 4+128 {
		return fmt.Errorf("aggregated attestation: %w: offset %d", ErrOffsetOutOfRange, off)
	}
	if err := a.Data.UnmarshalSSZ(buf[4:132]); err != nil {
		return err
	}
	a.AggregationBits = append([]byte(nil), buf[132:]...)
	return nil
}

func (a *AggregatedAttestation) HashTreeRoot() (Root, error) {
	data, err := a.Data.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	bits := ssz.BitlistRoot(a.AggregationBits, uint64(len(a.AggregationBits)*8), ValidatorRegistryLimit)
	return ssz.HashNodes(bits, data), nil
}

// --- Validator (fixed, 60 bytes) ---

func (v *Validator) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 60)
	copy(buf[0:52], v.Pubkey[:])
	binary.LittleEndian.PutUint64(buf[52:60], uint64(v.Index))
	return buf, nil
}

func (v *Validator) UnmarshalSSZ(buf []byte) error {
	if len(buf) != 60 {
		return fmt.Errorf("validator: %w: got %d bytes", ErrFixedSizeMismatch, len(buf))
	}
	copy(v.Pubkey[:], buf[0:52])
	v.Index = ValidatorIndex(binary.LittleEndian.Uint64(buf[52:60]))
	return nil
}

func (v *Validator) HashTreeRoot() (Root, error) {
	pubkeyRoot := ssz.Merkleize(ssz.PackBytes(v.Pubkey[:]), 0)
	return ssz.HashNodes(pubkeyRoot, ssz.HashTreeRootUint64(uint64(v.Index))), nil
}

// --- BlockHeader (fixed, 112 bytes) ---

func (h *BlockHeader) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 112)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(h.Slot))
	binary.LittleEndian.PutUint64(buf[8:16], h.ProposerIndex)
	copy(buf[16:48], h.ParentRoot[:])
	copy(buf[48:80], h.StateRoot[:])
	copy(buf[80:112], h.BodyRoot[:])
	return buf, nil
}

func (h *BlockHeader) UnmarshalSSZ(buf []byte) error {
	if len(buf) != 112 {
		return fmt.Errorf("block header: %w: got %d bytes", ErrFixedSizeMismatch, len(buf))
	}
	h.Slot = Slot(binary.LittleEndian.Uint64(buf[0:8]))
	h.ProposerIndex = binary.LittleEndian.Uint64(buf[8:16])
	copy(h.ParentRoot[:], buf[16:48])
	copy(h.StateRoot[:], buf[48:80])
	copy(h.BodyRoot[:], buf[80:112])
	return nil
}

func (h *BlockHeader) HashTreeRoot() (Root, error) {
	a := ssz.HashNodes(ssz.HashTreeRootUint64(uint64(h.Slot)), ssz.HashTreeRootUint64(h.ProposerIndex))
	b := ssz.HashNodes(h.ParentRoot, h.StateRoot)
	ab := ssz.HashNodes(a, b)
	// BodyRoot is the 5th leaf; pad to the next power of two (8) with zero leaves.
	c := ssz.HashNodes(h.BodyRoot, ssz.ZeroHash)
	cd := ssz.HashNodes(c, ssz.HashNodes(ssz.ZeroHash, ssz.ZeroHash))
	return ssz.HashNodes(ab, cd), nil
}

// --- BlockBody (variable: list<SignedAttestation>) ---

func (b *BlockBody) MarshalSSZ() ([]byte, error) {
	fixed := make([]byte, offsetSize)
	writeOffset(fixed, offsetSize)
	var variable []byte
	for i := range b.Attestations {
		enc, err := b.Attestations[i].MarshalSSZ()
		if err != nil {
			return nil, err
		}
		variable = append(variable, enc...)
	}
	return append(fixed, variable...), nil
}

func (b *BlockBody) UnmarshalSSZ(buf []byte) error {
	if len(buf) < offsetSize {
		return fmt.Errorf("block body: %w: buffer too short", ErrOffsetOutOfRange)
	}
	off := readOffset(buf[0:offsetSize])
	if int(off) != offsetSize {
		return fmt.Errorf("block body: %w: offset %d", ErrOffsetOutOfRange, off)
	}
	data := buf[offsetSize:]
	if len(data)%3248 != 0 {
		return fmt.Errorf("block body: %w: attestation list length %d", ErrFixedSizeMismatch, len(data))
	}
	n := len(data) / 3248
	if n > ValidatorRegistryLimit {
		return fmt.Errorf("block body: %w: too many attestations (%d)", ErrOffsetOutOfRange, n)
	}
	b.Attestations = make([]SignedAttestation, n)
	for i := 0; i < n; i++ {
		if err := b.Attestations[i].UnmarshalSSZ(data[i*3248 : (i+1)*3248]); err != nil {
			return err
		}
	}
	return nil
}

func (b *BlockBody) HashTreeRoot() (Root, error) {
	chunks := make([]Root, len(b.Attestations))
	for i := range b.Attestations {
		r, err := b.Attestations[i].HashTreeRoot()
		if err != nil {
			return Root{}, err
		}
		chunks[i] = r
	}
	limit := (ValidatorRegistryLimit + 0)
	root := ssz.Merkleize(chunks, limit)
	return ssz.MixInLength(root, uint64(len(b.Attestations))), nil
}

// --- Block (variable: fixed prefix + Body) ---

const blockFixedSize = 8 + 8 + 32 + 32 + offsetSize // 84

func (b *Block) MarshalSSZ() ([]byte, error) {
	fixed := make([]byte, blockFixedSize)
	binary.LittleEndian.PutUint64(fixed[0:8], uint64(b.Slot))
	binary.LittleEndian.PutUint64(fixed[8:16], b.ProposerIndex)
	copy(fixed[16:48], b.ParentRoot[:])
	copy(fixed[48:80], b.StateRoot[:])
	writeOffset(fixed[80:84], blockFixedSize)
	body, err := b.Body.MarshalSSZ()
	if err != nil {
		return nil, err
	}
	return append(fixed, body...), nil
}

func (b *Block) UnmarshalSSZ(buf []byte) error {
	if len(buf) < blockFixedSize {
		return fmt.Errorf("block: %w: buffer too short", ErrOffsetOutOfRange)
	}
	b.Slot = Slot(binary.LittleEndian.Uint64(buf[0:8]))
	b.ProposerIndex = binary.LittleEndian.Uint64(buf[8:16])
	copy(b.ParentRoot[:], buf[16:48])
	copy(b.StateRoot[:], buf[48:80])
	off := readOffset(buf[80:84])
	if int(off) != blockFixedSize {
		return fmt.Errorf("block: %w: body offset %d", ErrOffsetOutOfRange, off)
	}
	return b.Body.UnmarshalSSZ(buf[blockFixedSize:])
}

func (b *Block) HashTreeRoot() (Root, error) {
	body, err := b.Body.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	a := ssz.HashNodes(ssz.HashTreeRootUint64(uint64(b.Slot)), ssz.HashTreeRootUint64(b.ProposerIndex))
	bb := ssz.HashNodes(b.ParentRoot, b.StateRoot)
	ab := ssz.HashNodes(a, bb)
	c := ssz.HashNodes(body, ssz.ZeroHash)
	cd := ssz.HashNodes(c, ssz.HashNodes(ssz.ZeroHash, ssz.ZeroHash))
	return ssz.HashNodes(ab, cd), nil
}

// --- SignedBlock (variable: offset + fixed Signature, then Block) ---

const signedBlockFixedSize = offsetSize + 3112

func (s *SignedBlock) MarshalSSZ() ([]byte, error) {
	fixed := make([]byte, signedBlockFixedSize)
	writeOffset(fixed[0:offsetSize], signedBlockFixedSize)
	copy(fixed[offsetSize:], s.Signature[:])
	msg, err := s.Message.MarshalSSZ()
	if err != nil {
		return nil, err
	}
	return append(fixed, msg...), nil
}

func (s *SignedBlock) UnmarshalSSZ(buf []byte) error {
	if len(buf) < signedBlockFixedSize {
		return fmt.Errorf("signed block: %w: buffer too short", ErrOffsetOutOfRange)
	}
	off := readOffset(buf[0:offsetSize])
	if int(off) != signedBlockFixedSize {
		return fmt.Errorf("signed block: %w: offset %d", ErrOffsetOutOfRange, off)
	}
	copy(s.Signature[:], buf[offsetSize:signedBlockFixedSize])
	return s.Message.UnmarshalSSZ(buf[signedBlockFixedSize:])
}

func (s *SignedBlock) HashTreeRoot() (Root, error) {
	msg, err := s.Message.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	sigRoot := ssz.Merkleize(ssz.PackBytes(s.Signature[:]), 0)
	return ssz.HashNodes(msg, sigRoot), nil
}

// --- State (variable: fixed prefix of scalars/checkpoints + 5 offsets) ---

const stateFixedScalarSize = 16 + 8 + 112 + 40 + 40 // 216
const stateNumVariableFields = 5
const stateFixedSize = stateFixedScalarSize + stateNumVariableFields*offsetSize // 236

func (s *State) MarshalSSZ() ([]byte, error) {
	fixed := make([]byte, stateFixedSize)
	cfg, err := s.Config.MarshalSSZ()
	if err != nil {
		return nil, err
	}
	copy(fixed[0:16], cfg)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(s.Slot))
	hdr, err := s.LatestBlockHeader.MarshalSSZ()
	if err != nil {
		return nil, err
	}
	copy(fixed[24:136], hdr)
	just, err := s.LatestJustified.MarshalSSZ()
	if err != nil {
		return nil, err
	}
	copy(fixed[136:176], just)
	fin, err := s.LatestFinalized.MarshalSSZ()
	if err != nil {
		return nil, err
	}
	copy(fixed[176:216], fin)

	var variable []byte
	offset := stateFixedSize

	writeOffset(fixed[216:220], offset)
	for _, r := range s.HistoricalBlockHashes {
		variable = append(variable, r[:]...)
	}
	offset += len(s.HistoricalBlockHashes) * 32

	writeOffset(fixed[220:224], offset)
	variable = append(variable, s.JustifiedSlots...)
	offset += len(s.JustifiedSlots)

	writeOffset(fixed[224:228], offset)
	for i := range s.Validators {
		enc, err := s.Validators[i].MarshalSSZ()
		if err != nil {
			return nil, err
		}
		variable = append(variable, enc...)
	}
	offset += len(s.Validators) * 60

	writeOffset(fixed[228:232], offset)
	for _, r := range s.JustificationsRoots {
		variable = append(variable, r[:]...)
	}
	offset += len(s.JustificationsRoots) * 32

	writeOffset(fixed[232:236], offset)
	variable = append(variable, s.JustificationsValidators...)

	return append(fixed, variable...), nil
}

func (s *State) UnmarshalSSZ(buf []byte) error {
	if len(buf) < stateFixedSize {
		return fmt.Errorf("state: %w: buffer too short", ErrOffsetOutOfRange)
	}
	if err := s.Config.UnmarshalSSZ(buf[0:16]); err != nil {
		return err
	}
	s.Slot = Slot(binary.LittleEndian.Uint64(buf[16:24]))
	if err := s.LatestBlockHeader.UnmarshalSSZ(buf[24:136]); err != nil {
		return err
	}
	if err := s.LatestJustified.UnmarshalSSZ(buf[136:176]); err != nil {
		return err
	}
	if err := s.LatestFinalized.UnmarshalSSZ(buf[176:216]); err != nil {
		return err
	}

	o1 := int(readOffset(buf[216:220]))
	o2 := int(readOffset(buf[220:224]))
	o3 := int(readOffset(buf[224:228]))
	o4 := int(readOffset(buf[228:232]))
	o5 := int(readOffset(buf[232:236]))
	end := len(buf)

	if !(stateFixedSize <= o1 && o1 <= o2 && o2 <= o3 && o3 <= o4 && o4 <= o5 && o5 <= end) {
		return fmt.Errorf("state: %w: malformed offsets", ErrOffsetOutOfRange)
	}

	historical := buf[o1:o2]
	if len(historical)%32 != 0 {
		return fmt.Errorf("state: %w: historical hashes", ErrFixedSizeMismatch)
	}
	s.HistoricalBlockHashes = make([]Root, len(historical)/32)
	for i := range s.HistoricalBlockHashes {
		copy(s.HistoricalBlockHashes[i][:], historical[i*32:(i+1)*32])
	}

	s.JustifiedSlots = append([]byte(nil), buf[o2:o3]...)

	validators := buf[o3:o4]
	if len(validators)%60 != 0 {
		return fmt.Errorf("state: %w: validators", ErrFixedSizeMismatch)
	}
	s.Validators = make([]Validator, len(validators)/60)
	for i := range s.Validators {
		if err := s.Validators[i].UnmarshalSSZ(validators[i*60 : (i+1)*60]); err != nil {
			return err
		}
	}

	justRoots := buf[o4:o5]
	if len(justRoots)%32 != 0 {
		return fmt.Errorf("state: %w: justification roots", ErrFixedSizeMismatch)
	}
	s.JustificationsRoots = make([]Root, len(justRoots)/32)
	for i := range s.JustificationsRoots {
		copy(s.JustificationsRoots[i][:], justRoots[i*32:(i+1)*32])
	}

	s.JustificationsValidators = append([]byte(nil), buf[o5:end]...)
	return nil
}

func (s *State) HashTreeRoot() (Root, error) {
	cfg, err := s.Config.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	hdr, err := s.LatestBlockHeader.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	just, err := s.LatestJustified.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}
	fin, err := s.LatestFinalized.HashTreeRoot()
	if err != nil {
		return Root{}, err
	}

	historicalChunks := make([]Root, len(s.HistoricalBlockHashes))
	for i, r := range s.HistoricalBlockHashes {
		historicalChunks[i] = r
	}
	historicalRoot := ssz.MixInLength(ssz.Merkleize(historicalChunks, HistoricalRootsLimit), uint64(len(s.HistoricalBlockHashes)))

	justifiedSlotsRoot := ssz.BitlistRoot(s.JustifiedSlots, uint64(len(s.JustifiedSlots)*8), HistoricalRootsLimit)

	validatorChunks := make([]Root, len(s.Validators))
	for i := range s.Validators {
		r, err := s.Validators[i].HashTreeRoot()
		if err != nil {
			return Root{}, err
		}
		validatorChunks[i] = r
	}
	validatorsRoot := ssz.MixInLength(ssz.Merkleize(validatorChunks, ValidatorRegistryLimit), uint64(len(s.Validators)))

	justRootsChunks := make([]Root, len(s.JustificationsRoots))
	for i, r := range s.JustificationsRoots {
		justRootsChunks[i] = r
	}
	justRootsRoot := ssz.MixInLength(ssz.Merkleize(justRootsChunks, HistoricalRootsLimit), uint64(len(s.JustificationsRoots)))

	justValidatorsRoot := ssz.BitlistRoot(s.JustificationsValidators, uint64(len(s.JustificationsValidators)*8), HistoricalRootsLimit*ValidatorRegistryLimit)

	// 10 leaves (config, slot, header, justified, finalized, historical,
	// justified_slots, validators, justification_roots, justification_validators)
	// padded to 16 leaves.
	leaves := []Root{
		cfg,
		ssz.HashTreeRootUint64(uint64(s.Slot)),
		hdr,
		just,
		fin,
		historicalRoot,
		justifiedSlotsRoot,
		validatorsRoot,
		justRootsRoot,
		justValidatorsRoot,
	}
	for len(leaves) < 16 {
		leaves = append(leaves, ssz.ZeroHash)
	}
	level := leaves
	for len(level) > 1 {
		next := make([]Root, len(level)/2)
		for i := range next {
			next[i] = ssz.HashNodes(level[i*2], level[i*2+1])
		}
		level = next
	}
	return level[0], nil
}
