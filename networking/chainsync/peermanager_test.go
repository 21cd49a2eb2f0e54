package chainsync

import (
	"testing"

	"github.com/geanlabs/gean/networking/reqresp"
	"github.com/geanlabs/gean/types"
	"github.com/libp2p/go-libp2p/core/peer"
)

func TestPeerManagerAddAndGet(t *testing.T) {
	m := NewPeerManager()
	p := m.AddPeer(peer.ID("peer-a"), true)

	if !p.Connected {
		t.Error("newly added peer should be connected")
	}

	got, ok := m.GetPeer(peer.ID("peer-a"))
	if !ok {
		t.Fatal("GetPeer: peer not found")
	}
	if got.PeerID != peer.ID("peer-a") {
		t.Errorf("PeerID = %v, want peer-a", got.PeerID)
	}
}

func TestPeerManagerIsAvailable(t *testing.T) {
	m := NewPeerManager()
	m.AddPeer(peer.ID("peer-a"), true)

	for i := 0; i < MaxConcurrentRequests; i++ {
		m.OnRequestStart(peer.ID("peer-a"))
	}

	p, _ := m.GetPeer(peer.ID("peer-a"))
	if p.IsAvailable() {
		t.Error("peer at MaxConcurrentRequests should not be available")
	}

	m.OnRequestComplete(peer.ID("peer-a"))
	if !p.IsAvailable() {
		t.Error("peer should be available again after a request completes")
	}
}

func TestPeerManagerSelectPeerForRequest(t *testing.T) {
	m := NewPeerManager()
	m.AddPeer(peer.ID("disconnected"), false)
	m.AddPeer(peer.ID("connected"), true)

	selected, ok := m.SelectPeerForRequest(nil)
	if !ok {
		t.Fatal("expected a peer to be selected")
	}
	if selected != peer.ID("connected") {
		t.Errorf("SelectPeerForRequest() = %v, want connected", selected)
	}
}

func TestPeerManagerSelectPeerForRequestMinSlot(t *testing.T) {
	m := NewPeerManager()
	m.AddPeer(peer.ID("behind"), true)
	m.UpdateStatus(peer.ID("behind"), &reqresp.Status{Head: types.Checkpoint{Slot: 5}})

	minSlot := types.Slot(10)
	_, ok := m.SelectPeerForRequest(&minSlot)
	if ok {
		t.Error("peer behind minSlot should not be selected")
	}
}

func TestPeerManagerGetNetworkFinalizedSlotMode(t *testing.T) {
	m := NewPeerManager()
	peers := []peer.ID{"p1", "p2", "p3"}
	slots := []types.Slot{10, 10, 20}

	for i, id := range peers {
		m.AddPeer(id, true)
		m.UpdateStatus(id, &reqresp.Status{Finalized: types.Checkpoint{Slot: slots[i]}})
	}

	mode, ok := m.GetNetworkFinalizedSlot()
	if !ok {
		t.Fatal("expected a finalized slot mode")
	}
	if mode != 10 {
		t.Errorf("GetNetworkFinalizedSlot() = %d, want 10", mode)
	}
}

func TestPeerManagerGetNetworkFinalizedSlotNoPeers(t *testing.T) {
	m := NewPeerManager()
	_, ok := m.GetNetworkFinalizedSlot()
	if ok {
		t.Error("expected no finalized slot with no reporting peers")
	}
}

func TestPeerManagerRemovePeer(t *testing.T) {
	m := NewPeerManager()
	m.AddPeer(peer.ID("peer-a"), true)
	m.RemovePeer(peer.ID("peer-a"))

	if _, ok := m.GetPeer(peer.ID("peer-a")); ok {
		t.Error("peer should be gone after RemovePeer")
	}
}
