package networking

import (
	"testing"

	"github.com/golang/snappy"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
)

// S8. Message-ID domain split: identical topic and payload bytes, one
// message passes snappy decoding and one fails. Their 20-byte IDs must
// differ, and both must be exactly 20 bytes.
func TestGossipMessageID_DomainSplit(t *testing.T) {
	topic := BlockTopic
	payload := []byte("a lean consensus block payload")

	validFrame := snappy.Encode(nil, payload)
	invalidFrame := []byte{0xff, 0xff, 0xff, 0xff, 0xff}

	validID := GossipMessageID(topic, validFrame)
	invalidID := GossipMessageID(topic, invalidFrame)

	if len(validID) != 20 {
		t.Fatalf("valid-frame ID length = %d, want 20", len(validID))
	}
	if len(invalidID) != 20 {
		t.Fatalf("invalid-frame ID length = %d, want 20", len(invalidID))
	}
	if validID == invalidID {
		t.Fatal("valid and invalid snappy frames must not collide in message ID space")
	}
}

func TestGossipMessageID_Deterministic(t *testing.T) {
	topic := AttestationTopic
	frame := snappy.Encode(nil, []byte("attestation payload"))

	first := GossipMessageID(topic, frame)
	second := GossipMessageID(topic, frame)
	if first != second {
		t.Fatal("GossipMessageID must be deterministic for identical inputs")
	}
}

func TestMessageIDCache_MemoizesAndMatchesDirect(t *testing.T) {
	cache := newMessageIDCache()
	topic := BlockTopic
	frame := snappy.Encode(nil, []byte("cached payload"))

	direct := GossipMessageID(topic, frame)

	msg := &pb.Message{Topic: &topic, Data: frame}
	first := cache.idFor(msg)
	second := cache.idFor(msg)

	if first != direct {
		t.Fatalf("cached ID %x != direct ID %x", first, direct)
	}
	if first != second {
		t.Fatal("cache must return the same ID for the same (topic, payload) on repeat lookups")
	}
	if len(cache.cache) != 1 {
		t.Fatalf("cache should hold exactly one entry, got %d", len(cache.cache))
	}
}
