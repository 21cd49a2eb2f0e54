// Package chainsync implements chain synchronization for the consensus client.
//
// A node learns a peer is ahead via the Status handshake, then pulls missing
// blocks over the BlocksByRoot req/resp protocol. Blocks that arrive before
// their parent (gossip races, parallel downloads, brief disconnects) are
// parked in a BlockCache as orphans; BackfillSync walks the orphan's parent
// chain back toward a known root, and the syncer drains whatever becomes
// processable into the fork choice store in parent-first order.
//
// Sync requests use exponential backoff retry (1s, 2s, 4s, max 3 retries) to
// handle transient stream failures gracefully.
package chainsync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/geanlabs/gean/networking/reqresp"
	"github.com/geanlabs/gean/types"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// ChainStore provides access to the block store for chain synchronization.
// Satisfied by forkchoice.Store without modification.
type ChainStore interface {
	HasBlock(root types.Root) bool
	ProcessBlock(block *types.Block) error
	ProcessSignedBlock(signed *types.SignedBlock) error
	AdvanceTime(unixTime uint64, hasProposal bool)
	CurrentSlot() types.Slot
}

const (
	reqrespTimeout = 30 * time.Second
	maxSyncRetries = 3
	baseRetryDelay = 1 * time.Second
)

// Syncer coordinates peer status tracking, backfill of missing ancestors, and
// draining processable blocks into the fork choice store.
type Syncer struct {
	host           host.Host
	store          ChainStore
	streamHandler  *reqresp.StreamHandler
	reqrespHandler *reqresp.Handler
	logger         *slog.Logger

	peers    *PeerManager
	cache    *BlockCache
	backfill *BackfillSync

	mu    sync.RWMutex
	state SyncState

	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds syncer configuration.
type Config struct {
	Host           host.Host
	Store          ChainStore
	StreamHandler  *reqresp.StreamHandler
	ReqRespHandler *reqresp.Handler
	Logger         *slog.Logger
}

// NewSyncer creates a new syncer.
func NewSyncer(ctx context.Context, cfg Config) *Syncer {
	ctx, cancel := context.WithCancel(ctx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	peers := NewPeerManager()
	cache := NewBlockCache()

	s := &Syncer{
		host:           cfg.Host,
		store:          cfg.Store,
		streamHandler:  cfg.StreamHandler,
		reqrespHandler: cfg.ReqRespHandler,
		logger:         logger,
		peers:          peers,
		cache:          cache,
		state:          StateIdle,
		ctx:            ctx,
		cancel:         cancel,
	}
	s.backfill = NewBackfillSync(peers, cache, cfg.StreamHandler, logger)
	return s
}

// State returns the syncer's current coarse-grained state.
func (s *Syncer) State() SyncState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Syncer) setState(target SyncState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == target || !s.state.CanTransitionTo(target) {
		return
	}
	s.logger.Debug("sync state transition", "from", s.state, "to", target)
	s.state = target
}

// Start begins the syncer background tasks.
func (s *Syncer) Start() {
	s.host.Network().Notify(&connectionNotifier{syncer: s, logger: s.logger})

	for _, peerID := range s.host.Network().Peers() {
		s.peers.AddPeer(peerID, true)
		s.logger.Debug("found existing peer, initiating status exchange", "peer", peerID)
		go func(pid peer.ID) {
			ctx, cancel := context.WithTimeout(s.ctx, reqrespTimeout)
			defer cancel()
			if err := s.InitiateStatusExchange(ctx, pid); err != nil {
				s.logger.Warn("status exchange with existing peer failed", "peer", pid, "error", err)
			}
		}(peerID)
	}

	s.logger.Info("syncer started")
}

// Stop shuts down the syncer.
func (s *Syncer) Stop() {
	s.cancel()
	s.logger.Info("syncer stopped")
}

// InitiateStatusExchange sends our status and processes peer's response.
func (s *Syncer) InitiateStatusExchange(ctx context.Context, peerID peer.ID) error {
	ourStatus := s.reqrespHandler.GetStatus()

	s.logger.Debug("sending status to peer",
		"peer", peerID,
		"head_slot", ourStatus.Head.Slot,
		"finalized_slot", ourStatus.Finalized.Slot,
	)

	peerStatus, err := s.streamHandler.SendStatus(ctx, peerID, ourStatus)
	if err != nil {
		return fmt.Errorf("send status: %w", err)
	}

	return s.processPeerStatus(peerID, peerStatus)
}

// processPeerStatus validates and stores peer status, triggers sync if needed.
func (s *Syncer) processPeerStatus(peerID peer.ID, peerStatus *reqresp.Status) error {
	s.logger.Debug("received peer status",
		"peer", peerID,
		"peer_head_slot", peerStatus.Head.Slot,
		"peer_finalized_slot", peerStatus.Finalized.Slot,
	)

	if err := s.reqrespHandler.ValidatePeerStatus(peerStatus); err != nil {
		s.logger.Warn("invalid peer status, disconnecting", "peer", peerID, "error", err)
		s.host.Network().ClosePeer(peerID)
		return err
	}

	s.peers.AddPeer(peerID, true)
	s.peers.UpdateStatus(peerID, peerStatus)

	ourStatus := s.reqrespHandler.GetStatus()
	if peerStatus.Head.Slot > ourStatus.Head.Slot {
		s.logger.Info("peer ahead, initiating sync",
			"peer", peerID,
			"peer_head_slot", peerStatus.Head.Slot,
			"our_head_slot", ourStatus.Head.Slot,
		)
		go s.syncFromPeer(peerID, peerStatus)
	}

	return nil
}

// syncFromPeer requests the peer's head block, backfills its ancestry, and
// drains whatever becomes processable into the store.
func (s *Syncer) syncFromPeer(peerID peer.ID, peerStatus *reqresp.Status) {
	s.setState(StateSyncing)
	defer s.maybeMarkSynced()

	roots := []types.Root{peerStatus.Head.Root}
	s.logger.Debug("requesting blocks from peer", "peer", peerID, "roots", len(roots))

	blocks, err := s.requestBlocksWithRetry(peerID, roots)
	if err != nil {
		s.logger.Warn("failed to request blocks", "peer", peerID, "error", err)
		return
	}

	for _, block := range blocks {
		s.cache.AddBlock(block)
	}

	missing := s.cache.GetMissingParents()
	if len(missing) > 0 {
		s.backfill.FillMissing(s.ctx, missing, 0)
	}

	s.drainProcessable()

	currentTime := uint64(time.Now().Unix())
	s.store.AdvanceTime(currentTime, false)
}

// drainProcessable repeatedly pulls processable blocks out of the cache (in
// slot order) and feeds them to the store, until a pass yields nothing new.
func (s *Syncer) drainProcessable() {
	for {
		roots := s.cache.GetProcessableBlocks()
		if len(roots) == 0 {
			return
		}

		sort.Slice(roots, func(i, j int) bool {
			si, _ := s.cache.GetSlot(roots[i])
			sj, _ := s.cache.GetSlot(roots[j])
			return si < sj
		})

		progressed := false
		for _, root := range roots {
			block, ok := s.cache.GetBlock(root)
			if !ok {
				continue
			}
			if s.store.HasBlock(root) {
				s.cache.RemoveBlock(root)
				continue
			}
			if err := s.store.ProcessSignedBlock(block); err != nil {
				s.logger.Warn("failed to process synced block", "slot", block.Message.Slot, "error", err)
				continue
			}
			s.logger.Info("synced block", "slot", block.Message.Slot, "proposer", block.Message.ProposerIndex)
			s.cache.RemoveBlock(root)
			progressed = true
		}
		if !progressed {
			return
		}
	}
}

func (s *Syncer) maybeMarkSynced() {
	finalizedSlot, ok := s.peers.GetNetworkFinalizedSlot()
	if !ok {
		s.setState(StateIdle)
		return
	}
	if s.reqrespHandler.GetStatus().Head.Slot >= finalizedSlot {
		s.setState(StateSynced)
		return
	}
	s.setState(StateIdle)
}

// requestBlocksWithRetry wraps RequestBlocksByRoot with exponential backoff retry.
// Retries up to maxSyncRetries (3) times with delays of 1s, 2s, 4s.
// This handles transient libp2p stream reset errors that can occur under load.
func (s *Syncer) requestBlocksWithRetry(peerID peer.ID, roots []types.Root) ([]*types.SignedBlock, error) {
	var lastErr error
	for attempt := 0; attempt <= maxSyncRetries; attempt++ {
		if attempt > 0 {
			delay := baseRetryDelay * time.Duration(1<<(attempt-1)) // 1s, 2s, 4s
			s.logger.Debug("retrying block request", "peer", peerID, "attempt", attempt+1, "delay", delay)
			select {
			case <-s.ctx.Done():
				return nil, s.ctx.Err()
			case <-time.After(delay):
			}
		}

		blocks, err := s.streamHandler.RequestBlocksByRoot(s.ctx, peerID, roots)
		if err == nil {
			return blocks, nil
		}
		lastErr = err
		s.logger.Debug("block request failed", "peer", peerID, "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("after %d retries: %w", maxSyncRetries, lastErr)
}

// RemovePeer removes a peer from tracking.
func (s *Syncer) RemovePeer(peerID peer.ID) {
	s.peers.RemovePeer(peerID)
}

// OnBlockReceived is called for every block seen via gossip. It caches the
// block and, if its parent is unknown, kicks off backfill from fromPeer.
func (s *Syncer) OnBlockReceived(block *types.SignedBlock, fromPeer peer.ID) error {
	root := s.cache.AddBlock(block)
	if !s.cache.IsOrphan(root) {
		return nil
	}

	s.setState(StateSyncing)
	go func() {
		defer s.maybeMarkSynced()
		s.backfill.FillMissing(s.ctx, []types.Root{block.Message.ParentRoot}, 0)
		s.drainProcessable()
	}()
	return nil
}

// connectionNotifier listens for peer connection events.
type connectionNotifier struct {
	syncer *Syncer
	logger *slog.Logger
}

// Listen implements network.Notifiee
func (n *connectionNotifier) Listen(network.Network, multiaddr.Multiaddr) {}

// ListenClose implements network.Notifiee
func (n *connectionNotifier) ListenClose(network.Network, multiaddr.Multiaddr) {}

// Connected is called when a new peer connection is established.
// The dialer sends Status first; the listener responds with its own.
func (n *connectionNotifier) Connected(net network.Network, conn network.Conn) {
	peerID := conn.RemotePeer()
	n.syncer.peers.AddPeer(peerID, true)

	if conn.Stat().Direction == network.DirOutbound {
		n.logger.Debug("new outbound connection, initiating status exchange", "peer", peerID)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), reqrespTimeout)
			defer cancel()
			if err := n.syncer.InitiateStatusExchange(ctx, peerID); err != nil {
				n.logger.Warn("status exchange failed", "peer", peerID, "error", err)
			}
		}()
	} else {
		n.logger.Debug("new inbound connection", "peer", peerID)
		// Listener waits for the dialer's Status stream before responding.
	}
}

// Disconnected is called when a peer disconnects.
func (n *connectionNotifier) Disconnected(net network.Network, conn network.Conn) {
	peerID := conn.RemotePeer()
	n.logger.Debug("peer disconnected", "peer", peerID)
	n.syncer.peers.UpdateConnectionState(peerID, false)
}

var _ network.Notifiee = (*connectionNotifier)(nil)
