package chainsync

import (
	"sort"
	"sync"

	"github.com/geanlabs/gean/networking/reqresp"
	"github.com/geanlabs/gean/types"
	"github.com/libp2p/go-libp2p/core/peer"
)

// MaxConcurrentRequests bounds the number of in-flight BlocksByRoot requests
// this node will keep open against a single peer at once.
const MaxConcurrentRequests = 2

// SyncPeer wraps a peer with sync-specific state: its reported chain status
// and how many requests we currently have in flight against it.
type SyncPeer struct {
	PeerID           peer.ID
	Connected        bool
	Status           *reqresp.Status
	RequestsInFlight int
}

// IsAvailable reports whether the peer can take another request.
func (p *SyncPeer) IsAvailable() bool {
	return p.Connected && p.RequestsInFlight < MaxConcurrentRequests
}

// HasSlot reports whether the peer's reported head likely covers slot.
func (p *SyncPeer) HasSlot(slot types.Slot) bool {
	return p.Status != nil && p.Status.Head.Slot >= slot
}

// PeerManager tracks connected peers' chain status and request load, and
// selects peers for backfill requests.
type PeerManager struct {
	mu    sync.RWMutex
	peers map[peer.ID]*SyncPeer
}

// NewPeerManager creates an empty peer manager.
func NewPeerManager() *PeerManager {
	return &PeerManager{peers: make(map[peer.ID]*SyncPeer)}
}

// AddPeer registers a peer, creating tracking state if this is the first time
// it's seen.
func (m *PeerManager) AddPeer(peerID peer.ID, connected bool) *SyncPeer {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[peerID]
	if !ok {
		p = &SyncPeer{PeerID: peerID, Connected: connected}
		m.peers[peerID] = p
	}
	return p
}

// RemovePeer drops a peer from tracking.
func (m *PeerManager) RemovePeer(peerID peer.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, peerID)
}

// GetPeer returns a peer's tracked state, if known.
func (m *PeerManager) GetPeer(peerID peer.ID) (*SyncPeer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peers[peerID]
	return p, ok
}

// UpdateConnectionState records a peer's connected/disconnected transition.
func (m *PeerManager) UpdateConnectionState(peerID peer.ID, connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[peerID]; ok {
		p.Connected = connected
	}
}

// UpdateStatus records the peer's latest handshake status.
func (m *PeerManager) UpdateStatus(peerID peer.ID, status *reqresp.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[peerID]; ok {
		p.Status = status
	}
}

// SelectPeerForRequest picks an available peer, optionally restricted to peers
// whose reported head covers minSlot. Returns false if none qualify.
func (m *PeerManager) SelectPeerForRequest(minSlot *types.Slot) (peer.ID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.peers {
		if !p.IsAvailable() {
			continue
		}
		if minSlot != nil && !p.HasSlot(*minSlot) {
			continue
		}
		return p.PeerID, true
	}
	return peer.ID(""), false
}

// GetNetworkFinalizedSlot returns the mode (most common) finalized slot
// reported by connected peers, or false if no peer has reported status yet.
func (m *PeerManager) GetNetworkFinalizedSlot() (types.Slot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var slots []types.Slot
	for _, p := range m.peers {
		if p.Connected && p.Status != nil {
			slots = append(slots, p.Status.Finalized.Slot)
		}
	}
	if len(slots) == 0 {
		return 0, false
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	mode, maxCount := slots[0], 1
	currentSlot, currentCount := slots[0], 1
	for _, s := range slots[1:] {
		if s == currentSlot {
			currentCount++
		} else {
			if currentCount > maxCount {
				maxCount, mode = currentCount, currentSlot
			}
			currentSlot, currentCount = s, 1
		}
	}
	if currentCount > maxCount {
		mode = currentSlot
	}
	return mode, true
}

// OnRequestStart marks that a request was sent to a peer.
func (m *PeerManager) OnRequestStart(peerID peer.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[peerID]; ok {
		p.RequestsInFlight++
	}
}

// OnRequestComplete marks a request against a peer as finished, successfully
// or not.
func (m *PeerManager) OnRequestComplete(peerID peer.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[peerID]; ok && p.RequestsInFlight > 0 {
		p.RequestsInFlight--
	}
}

// AllPeers returns a snapshot of all tracked peers.
func (m *PeerManager) AllPeers() []*SyncPeer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*SyncPeer, 0, len(m.peers))
	for _, p := range m.peers {
		cp := *p
		out = append(out, &cp)
	}
	return out
}
