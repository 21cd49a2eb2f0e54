package networking

import (
	"context"
	"fmt"

	"github.com/geanlabs/gean/types"
	"github.com/libp2p/go-libp2p/core/peer"
)

// BlockHandler is invoked with a decoded block once HandleBlockMessage has
// unmarshaled it off the wire.
type BlockHandler func(ctx context.Context, block *types.SignedBlock, from peer.ID) error

// AttestationHandler is invoked with a decoded attestation once
// HandleAttestationMessage has unmarshaled it off the wire.
type AttestationHandler func(ctx context.Context, att *types.SignedAttestation) error

// MessageHandlers wires decoded gossip messages to the node's own
// processing logic. A nil handler silently drops the decoded message,
// which lets a node subscribe to a topic purely to relay it.
type MessageHandlers struct {
	OnBlock       BlockHandler
	OnAttestation AttestationHandler
}

// sszUnmarshaler is satisfied by every gossip payload type this package
// decodes.
type sszUnmarshaler interface {
	UnmarshalSSZ([]byte) error
}

// decodeGossipPayload reverses the wire transform shared by every topic:
// snappy-decompress, then SSZ-decode into dst.
func decodeGossipPayload(data []byte, dst sszUnmarshaler, kind string) error {
	raw, err := DecompressMessage(data)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", kind, err)
	}
	if err := dst.UnmarshalSSZ(raw); err != nil {
		return fmt.Errorf("unmarshal %s: %w", kind, err)
	}
	return nil
}

// HandleBlockMessage decodes a raw block-topic payload and, if OnBlock is
// set, dispatches it along with the peer it arrived from.
func (h *MessageHandlers) HandleBlockMessage(ctx context.Context, data []byte, from peer.ID) error {
	var block types.SignedBlock
	if err := decodeGossipPayload(data, &block, "block"); err != nil {
		return err
	}
	if h.OnBlock == nil {
		return nil
	}
	return h.OnBlock(ctx, &block, from)
}

// HandleAttestationMessage decodes a raw attestation-topic payload and, if
// OnAttestation is set, dispatches it.
func (h *MessageHandlers) HandleAttestationMessage(ctx context.Context, data []byte) error {
	var att types.SignedAttestation
	if err := decodeGossipPayload(data, &att, "attestation"); err != nil {
		return err
	}
	if h.OnAttestation == nil {
		return nil
	}
	return h.OnAttestation(ctx, &att)
}
