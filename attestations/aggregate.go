// Package attestations groups validator attestations that share identical
// AttestationData into compact AggregatedAttestation bitlists, the way
// committee-free devnets compress vote traffic before gossiping or including
// it in a block body.
package attestations

import (
	"github.com/OffchainLabs/go-bitfield"

	"github.com/geanlabs/gean/types"
)

// aggregationBitsBytes is the fixed byte width of an AggregatedAttestation's
// bitlist: one bit per validator slot, no SSZ delimiter bit, matching the
// hand-written codec in types/ssz.go.
const aggregationBitsBytes = types.ValidatorRegistryLimit / 8

// AggregateByData groups attestations that share identical AttestationData
// into one AggregatedAttestation per distinct data value, ordered by first
// appearance. A validator that appears twice for the same data is only
// counted once.
func AggregateByData(atts []types.Attestation) []types.AggregatedAttestation {
	var order []types.AttestationData
	bits := make(map[types.AttestationData]bitfield.Bitlist)

	for _, att := range atts {
		b, ok := bits[att.Data]
		if !ok {
			// ValidatorRegistryLimit bits land entirely within the first
			// aggregationBitsBytes bytes; NewBitlist's length-delimiter bit
			// falls in the byte just past them, so slicing it off below
			// yields a clean fixed-width bit vector.
			b = bitfield.NewBitlist(types.ValidatorRegistryLimit)
			bits[att.Data] = b
			order = append(order, att.Data)
		}
		b.SetBitAt(att.ValidatorID, true)
	}

	out := make([]types.AggregatedAttestation, 0, len(order))
	for _, data := range order {
		b := bits[data]
		out = append(out, types.AggregatedAttestation{
			AggregationBits: append([]byte(nil), b[:aggregationBitsBytes]...),
			Data:            data,
		})
	}
	return out
}

// ValidatorIndices returns the validator indices set in an
// AggregatedAttestation's bitlist, in ascending order.
func ValidatorIndices(agg types.AggregatedAttestation) []uint64 {
	var indices []uint64
	for i, b := range agg.AggregationBits {
		if b == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) != 0 {
				indices = append(indices, uint64(i*8+bit))
			}
		}
	}
	return indices
}
