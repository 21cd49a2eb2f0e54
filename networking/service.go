package networking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/geanlabs/gean/types"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
)

// gossipFeed pairs a joined topic with its subscription and the callback that
// consumes decoded messages off it -- one of these exists per gossip kind
// (blocks, attestations) so Start/Stop don't need kind-specific plumbing.
type gossipFeed struct {
	name    string
	topic   *pubsub.Topic
	sub     *pubsub.Subscription
	deliver func(ctx context.Context, data []byte, from peer.ID) error
}

// Service owns the gossipsub router and the two feeds it drives (blocks and
// attestations), plus best-effort bootnode dialing that keeps retrying in
// the background until every configured bootnode answers once.
type Service struct {
	host   host.Host
	router *pubsub.PubSub
	feeds  []*gossipFeed
	logger *slog.Logger

	pendingBootnodes []peer.AddrInfo

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServiceConfig holds configuration for the networking service.
type ServiceConfig struct {
	Host      host.Host
	Handlers  *MessageHandlers
	Bootnodes []peer.AddrInfo
	Logger    *slog.Logger
}

// NewService joins the block and attestation topics, subscribes to both, and
// kicks off a best-effort connection attempt to every bootnode.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router, err := NewGossipSub(ctx, cfg.Host)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create gossipsub router: %w", err)
	}

	svc := &Service{
		host:   cfg.Host,
		router: router,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	blockFeed, err := svc.joinFeed("block", BlockTopic, func(ctx context.Context, data []byte, from peer.ID) error {
		return cfg.Handlers.HandleBlockMessage(ctx, data, from)
	})
	if err != nil {
		cancel()
		return nil, err
	}

	attestationFeed, err := svc.joinFeed("attestation", AttestationTopic, func(ctx context.Context, data []byte, _ peer.ID) error {
		return cfg.Handlers.HandleAttestationMessage(ctx, data)
	})
	if err != nil {
		cancel()
		return nil, err
	}

	svc.feeds = []*gossipFeed{blockFeed, attestationFeed}
	svc.pendingBootnodes = svc.dialBootnodes(cfg.Bootnodes)

	return svc, nil
}

// joinFeed joins a gossipsub topic and subscribes to it immediately, binding
// the given delivery callback for use once Start begins pumping messages.
func (s *Service) joinFeed(name, topicName string, deliver func(context.Context, []byte, peer.ID) error) (*gossipFeed, error) {
	topic, err := s.router.Join(topicName)
	if err != nil {
		return nil, fmt.Errorf("join %s topic: %w", name, err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("subscribe %s topic: %w", name, err)
	}
	return &gossipFeed{name: name, topic: topic, sub: sub, deliver: deliver}, nil
}

// dialBootnodes attempts each bootnode once and returns the ones that
// didn't answer, for retryBootnodes to keep chasing.
func (s *Service) dialBootnodes(bootnodes []peer.AddrInfo) []peer.AddrInfo {
	var pending []peer.AddrInfo
	for _, pi := range bootnodes {
		if err := s.host.Connect(s.ctx, pi); err != nil {
			s.logger.Warn("bootnode dial failed", "peer", pi.ID, "error", err)
			pending = append(pending, pi)
			continue
		}
		s.logger.Info("connected to bootnode", "peer", pi.ID)
	}
	return pending
}

// Start launches one pump goroutine per feed plus, if needed, the bootnode
// retry loop.
func (s *Service) Start() {
	for _, feed := range s.feeds {
		s.wg.Add(1)
		go s.pump(feed)
	}

	if len(s.pendingBootnodes) > 0 {
		s.wg.Add(1)
		go s.retryBootnodes()
	}

	s.logger.Info("networking service started", "peer_id", s.host.ID(), "addrs", s.host.Addrs())
}

// Stop cancels every feed subscription and the bootnode retry loop, then
// waits for their goroutines to exit before closing the host.
func (s *Service) Stop() {
	s.cancel()
	for _, feed := range s.feeds {
		feed.sub.Cancel()
	}
	s.wg.Wait()
	s.host.Close()
	s.logger.Info("networking service stopped")
}

// PublishBlock publishes a signed block to the network.
func (s *Service) PublishBlock(ctx context.Context, block *types.SignedBlock) error {
	return s.publish(ctx, s.feeds[0].topic, block)
}

// PublishAttestation publishes a signed attestation to the network.
func (s *Service) PublishAttestation(ctx context.Context, att *types.SignedAttestation) error {
	return s.publish(ctx, s.feeds[1].topic, att)
}

type sszMarshaler interface {
	MarshalSSZ() ([]byte, error)
}

func (s *Service) publish(ctx context.Context, topic *pubsub.Topic, msg sszMarshaler) error {
	data, err := msg.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("encode gossip payload: %w", err)
	}
	return topic.Publish(ctx, CompressMessage(data))
}

// PeerCount returns the number of connected peers.
func (s *Service) PeerCount() int {
	return len(s.host.Network().Peers())
}

const bootnodeRetryInterval = 30 * time.Second

// retryBootnodes keeps re-dialing whatever bootnodes haven't answered yet,
// exiting once the list is empty or the service is stopped.
func (s *Service) retryBootnodes() {
	defer s.wg.Done()

	ticker := time.NewTicker(bootnodeRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.pendingBootnodes = s.dialBootnodes(s.pendingBootnodes)
			if len(s.pendingBootnodes) == 0 {
				s.logger.Debug("all bootnodes connected, stopping retry")
				return
			}
		}
	}
}

// pump drains one feed's subscription until the service is stopped, handing
// each non-self message to its delivery callback.
func (s *Service) pump(feed *gossipFeed) {
	defer s.wg.Done()

	for {
		msg, err := feed.sub.Next(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("gossip subscription error", "feed", feed.name, "error", err)
			continue
		}

		if msg.ReceivedFrom == s.host.ID() {
			continue // don't reprocess our own publishes
		}

		if feed.deliver == nil {
			continue
		}
		if err := feed.deliver(s.ctx, msg.Data, msg.ReceivedFrom); err != nil {
			s.logger.Error("gossip delivery error", "feed", feed.name, "error", err)
		}
	}
}
