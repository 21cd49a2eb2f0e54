package chainsync

import (
	"context"
	"log/slog"

	"github.com/geanlabs/gean/types"
	"github.com/libp2p/go-libp2p/core/peer"
)

const (
	// MaxBlocksPerRequest bounds how many roots go into a single BlocksByRoot
	// request.
	MaxBlocksPerRequest = 10
	// MaxBackfillDepth bounds how many parent hops backfill will chase before
	// giving up. An attacker could otherwise claim a parent millions of slots
	// back and exhaust memory walking toward it; 512 comfortably covers
	// legitimate reorgs while bounding the cost of a malicious claim.
	MaxBackfillDepth = 512
)

// NetworkRequester fetches blocks by root from a specific peer. Satisfied by
// reqresp.StreamHandler.RequestBlocksByRoot.
type NetworkRequester interface {
	RequestBlocksByRoot(ctx context.Context, peerID peer.ID, roots []types.Root) ([]*types.SignedBlock, error)
}

// BackfillSync resolves orphan blocks by fetching their missing ancestors.
// It only populates the BlockCache; the caller (Syncer) is responsible for
// pulling processable blocks out and feeding them to the fork choice store.
type BackfillSync struct {
	peers   *PeerManager
	cache   *BlockCache
	network NetworkRequester
	logger  *slog.Logger

	pending map[types.Root]struct{}
}

// NewBackfillSync creates a backfill coordinator over the given peer manager,
// block cache, and network requester.
func NewBackfillSync(peers *PeerManager, cache *BlockCache, network NetworkRequester, logger *slog.Logger) *BackfillSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackfillSync{
		peers:   peers,
		cache:   cache,
		network: network,
		logger:  logger,
		pending: make(map[types.Root]struct{}),
	}
}

// FillMissing recursively fetches missing parents for the given roots,
// stopping at MaxBackfillDepth. It is idempotent and safe to call repeatedly;
// roots already pending or cached are skipped.
func (b *BackfillSync) FillMissing(ctx context.Context, roots []types.Root, depth int) {
	if depth >= MaxBackfillDepth {
		b.logger.Debug("backfill depth limit reached", "depth", depth, "max_depth", MaxBackfillDepth)
		return
	}

	var toFetch []types.Root
	for _, root := range roots {
		if _, pending := b.pending[root]; pending {
			continue
		}
		if b.cache.Contains(root) {
			continue
		}
		toFetch = append(toFetch, root)
	}
	if len(toFetch) == 0 {
		return
	}

	b.logger.Debug("backfilling missing parents", "num_roots", len(toFetch), "depth", depth)

	for _, root := range toFetch {
		b.pending[root] = struct{}{}
	}
	defer func() {
		for _, root := range toFetch {
			delete(b.pending, root)
		}
	}()

	for start := 0; start < len(toFetch); start += MaxBlocksPerRequest {
		end := start + MaxBlocksPerRequest
		if end > len(toFetch) {
			end = len(toFetch)
		}
		b.fetchBatch(ctx, toFetch[start:end], depth)
	}
}

func (b *BackfillSync) fetchBatch(ctx context.Context, roots []types.Root, depth int) {
	peerID, ok := b.peers.SelectPeerForRequest(nil)
	if !ok {
		b.logger.Debug("no available peer for backfill request")
		return
	}

	b.peers.OnRequestStart(peerID)
	blocks, err := b.network.RequestBlocksByRoot(ctx, peerID, roots)
	b.peers.OnRequestComplete(peerID)

	if err != nil {
		b.logger.Warn("backfill request failed", "peer", peerID, "error", err)
		return
	}
	if len(blocks) == 0 {
		b.logger.Debug("peer returned no blocks", "peer", peerID)
		return
	}

	b.logger.Debug("received blocks from peer", "peer", peerID, "count", len(blocks))
	b.processReceivedBlocks(ctx, blocks, depth)
}

func (b *BackfillSync) processReceivedBlocks(ctx context.Context, blocks []*types.SignedBlock, depth int) {
	var newOrphanParents []types.Root

	for _, block := range blocks {
		root := b.cache.AddBlock(block)
		if b.cache.IsOrphan(root) {
			parentRoot := block.Message.ParentRoot
			if !parentRoot.IsZero() {
				newOrphanParents = append(newOrphanParents, parentRoot)
			}
		}
	}

	if len(newOrphanParents) > 0 {
		b.logger.Debug("found orphan parents, continuing backfill",
			"num_parents", len(newOrphanParents), "next_depth", depth+1)
		b.FillMissing(ctx, newOrphanParents, depth+1)
	}
}

// BlockCache exposes the underlying cache for the caller to drain processable
// blocks from after a backfill round.
func (b *BackfillSync) BlockCache() *BlockCache { return b.cache }

// PeerManager exposes the underlying peer manager.
func (b *BackfillSync) PeerManager() *PeerManager { return b.peers }
