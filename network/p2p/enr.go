// Package p2p bridges go-ethereum's ENR/devp2p node records to libp2p peer
// addresses, since bootnode lists on this network are published as ENRs but
// every other networking concern in this repo speaks libp2p.
package p2p

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/ethereum/go-ethereum/p2p/enr"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// ENRToAddrInfo decodes an ENR record string into a libp2p AddrInfo reachable
// over QUIC. It requires the record to carry an IP, a quic port, and a
// secp256k1 identity -- the three fields libp2p needs to dial a peer.
func ENRToAddrInfo(enrStr string) (*peer.AddrInfo, error) {
	node, err := enode.Parse(enode.ValidSchemes, enrStr)
	if err != nil {
		return nil, fmt.Errorf("parse enr: %w", err)
	}

	addr, err := quicMultiaddr(node)
	if err != nil {
		return nil, err
	}

	pid, err := peerID(node)
	if err != nil {
		return nil, err
	}

	return &peer.AddrInfo{ID: pid, Addrs: []ma.Multiaddr{addr}}, nil
}

// quicMultiaddr builds the /ip4/.../udp/.../quic-v1 multiaddr for node from
// its ENR's IP and quic entries.
func quicMultiaddr(node *enode.Node) (ma.Multiaddr, error) {
	ip := node.IP()
	if ip == nil {
		return nil, fmt.Errorf("enr has no IP")
	}

	var quicPort enr.QUIC
	if err := node.Record().Load(&quicPort); err != nil {
		return nil, fmt.Errorf("enr has no quic port: %w", err)
	}

	addr, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/%s/udp/%d/quic-v1", ip, quicPort))
	if err != nil {
		return nil, fmt.Errorf("build multiaddr: %w", err)
	}
	return addr, nil
}

// peerID derives a libp2p peer.ID from node's secp256k1 ENR identity,
// converting go-ethereum's uncompressed key into the compressed form
// libp2p's secp256k1 key type expects.
func peerID(node *enode.Node) (peer.ID, error) {
	pubkey := node.Pubkey()
	if pubkey == nil {
		return "", fmt.Errorf("enr has no public key")
	}

	compressed := crypto.CompressPubkey(pubkey)
	libp2pKey, err := libp2pcrypto.UnmarshalSecp256k1PublicKey(compressed)
	if err != nil {
		return "", fmt.Errorf("convert pubkey: %w", err)
	}

	pid, err := peer.IDFromPublicKey(libp2pKey)
	if err != nil {
		return "", fmt.Errorf("derive peer id: %w", err)
	}
	return pid, nil
}
