package reqresp

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/geanlabs/gean/types"
	"github.com/golang/snappy"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

// Stream I/O budgets. A request/response exchange that blows past these is
// treated as a dead peer rather than given more time.
const (
	ReadTimeout  = 10 * time.Second
	WriteTimeout = 10 * time.Second
	MaxMsgSize   = 10 * 1024 * 1024
)

// Response status byte, prefixed to every chunk on the wire (spec section 6).
const (
	RespCodeSuccess     byte = 0x00
	RespCodeInvalidReq  byte = 0x01
	RespCodeServerError byte = 0x02
)

// StreamHandler wires the req/resp protocol IDs to libp2p streams: it answers
// incoming Status and BlocksByRoot requests via Handler, and opens outbound
// streams to ask the same of other peers.
type StreamHandler struct {
	host    host.Host
	handler *Handler
}

func NewStreamHandler(h host.Host, handler *Handler) *StreamHandler {
	return &StreamHandler{host: h, handler: handler}
}

// RegisterProtocols attaches this node's stream handlers to both req/resp
// protocol IDs so peers can dial in.
func (s *StreamHandler) RegisterProtocols() {
	s.host.SetStreamHandler(protocol.ID(StatusProtocolV1), s.serveStatus)
	s.host.SetStreamHandler(protocol.ID(BlocksByRootProtocolV1), s.serveBlocksByRoot)
}

// serveStatus answers an inbound Status request with this node's own view.
func (s *StreamHandler) serveStatus(stream network.Stream) {
	defer stream.Close()
	_ = stream.SetReadDeadline(time.Now().Add(ReadTimeout))

	reqBody, err := readFrame(stream)
	if err != nil {
		slog.Debug("serveStatus: read request", "error", err)
		sendErrorCode(stream, RespCodeInvalidReq)
		return
	}

	var req Status
	if err := req.UnmarshalSSZ(reqBody); err != nil {
		slog.Debug("serveStatus: decode request", "error", err)
		sendErrorCode(stream, RespCodeInvalidReq)
		return
	}

	ours := s.handler.GetStatus()
	respBody, err := ours.MarshalSSZ()
	if err != nil {
		slog.Debug("serveStatus: encode response", "error", err)
		sendErrorCode(stream, RespCodeServerError)
		return
	}

	_ = stream.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := sendChunk(stream, RespCodeSuccess, respBody); err != nil {
		slog.Debug("serveStatus: write response", "error", err)
	}
}

// serveBlocksByRoot answers an inbound BlocksByRoot request, streaming each
// requested block back as its own independently-framed chunk.
func (s *StreamHandler) serveBlocksByRoot(stream network.Stream) {
	defer stream.Close()
	_ = stream.SetReadDeadline(time.Now().Add(ReadTimeout))

	reqBody, err := readFrame(stream)
	if err != nil {
		sendErrorCode(stream, RespCodeInvalidReq)
		return
	}

	var req BlocksByRootRequest
	if err := req.UnmarshalSSZ(reqBody); err != nil {
		sendErrorCode(stream, RespCodeInvalidReq)
		return
	}

	blocks := s.handler.HandleBlocksByRoot(&req)

	_ = stream.SetWriteDeadline(time.Now().Add(WriteTimeout))
	for _, block := range blocks {
		body, err := block.MarshalSSZ()
		if err != nil {
			continue
		}
		if err := sendChunk(stream, RespCodeSuccess, body); err != nil {
			return
		}
	}
}

// SendStatus opens a Status exchange with a peer and returns their reply.
func (s *StreamHandler) SendStatus(ctx context.Context, peerID peer.ID, ours *Status) (*Status, error) {
	body, err := ours.MarshalSSZ()
	if err != nil {
		return nil, fmt.Errorf("encode status request: %w", err)
	}

	respCode, respBody, err := s.roundTrip(ctx, peerID, StatusProtocolV1, body)
	if err != nil {
		return nil, err
	}
	if respCode != RespCodeSuccess {
		return nil, fmt.Errorf("status request: peer responded with code %d", respCode)
	}

	var theirs Status
	if err := theirs.UnmarshalSSZ(respBody); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &theirs, nil
}

// RequestBlocksByRoot asks a peer for each of the given block roots and
// collects however many come back before the stream closes or errors.
func (s *StreamHandler) RequestBlocksByRoot(ctx context.Context, peerID peer.ID, roots []types.Root) ([]*types.SignedBlock, error) {
	body, err := (&BlocksByRootRequest{Roots: roots}).MarshalSSZ()
	if err != nil {
		return nil, fmt.Errorf("encode blocks_by_root request: %w", err)
	}

	stream, err := s.host.NewStream(ctx, peerID, protocol.ID(BlocksByRootProtocolV1))
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	_ = stream.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := writeFrame(stream, body); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if err := stream.CloseWrite(); err != nil {
		return nil, fmt.Errorf("close write side: %w", err)
	}

	_ = stream.SetReadDeadline(time.Now().Add(ReadTimeout))

	var blocks []*types.SignedBlock
	for {
		code, chunk, err := readChunk(stream)
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if code != RespCodeSuccess {
			continue
		}
		var block types.SignedBlock
		if err := block.UnmarshalSSZ(chunk); err != nil {
			continue
		}
		blocks = append(blocks, &block)
	}
	return blocks, nil
}

// roundTrip opens a fresh stream to protocolID, writes body, half-closes the
// write side, and reads back exactly one response chunk.
func (s *StreamHandler) roundTrip(ctx context.Context, peerID peer.ID, protocolID string, body []byte) (byte, []byte, error) {
	stream, err := s.host.NewStream(ctx, peerID, protocol.ID(protocolID))
	if err != nil {
		return 0, nil, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	_ = stream.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := writeFrame(stream, body); err != nil {
		return 0, nil, fmt.Errorf("write request: %w", err)
	}
	if err := stream.CloseWrite(); err != nil {
		return 0, nil, fmt.Errorf("close write side: %w", err)
	}

	_ = stream.SetReadDeadline(time.Now().Add(ReadTimeout))
	return readChunk(stream)
}

// --- wire framing -----------------------------------------------------
//
// Every frame is a varint-encoded uncompressed length followed by a
// snappy-compressed SSZ payload. A response additionally carries a
// single leading status byte ahead of its frame.

// readFrame reads one varint-length-prefixed, snappy-compressed payload and
// returns it decompressed.
func readFrame(r io.Reader) ([]byte, error) {
	raw := make([]byte, MaxMsgSize)
	n, err := io.ReadFull(r, raw)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	raw = raw[:n]

	if len(raw) < 2 {
		return nil, fmt.Errorf("frame shorter than a varint prefix")
	}

	wantLen, prefixLen := binary.Uvarint(raw)
	if prefixLen <= 0 {
		return nil, fmt.Errorf("malformed varint length prefix")
	}
	if wantLen > MaxMsgSize {
		return nil, fmt.Errorf("frame declares %d bytes, exceeds max %d", wantLen, MaxMsgSize)
	}

	payload, err := snappy.Decode(nil, raw[prefixLen:])
	if err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	if uint64(len(payload)) != wantLen {
		return nil, fmt.Errorf("frame length mismatch: header says %d, decoded %d", wantLen, len(payload))
	}
	return payload, nil
}

// writeFrame snappy-compresses data and writes it behind a varint length
// prefix carrying the uncompressed size.
func writeFrame(w io.Writer, data []byte) error {
	var prefix [binary.MaxVarintLen64]byte
	prefixLen := binary.PutUvarint(prefix[:], uint64(len(data)))
	if _, err := w.Write(prefix[:prefixLen]); err != nil {
		return err
	}
	_, err := w.Write(snappy.Encode(nil, data))
	return err
}

// readChunk reads one status byte followed by one frame.
func readChunk(r io.Reader) (byte, []byte, error) {
	var code [1]byte
	if _, err := io.ReadFull(r, code[:]); err != nil {
		return 0, nil, err
	}
	payload, err := readFrame(r)
	return code[0], payload, err
}

// sendChunk writes a status byte followed by one framed payload.
func sendChunk(w io.Writer, code byte, data []byte) error {
	if _, err := w.Write([]byte{code}); err != nil {
		return err
	}
	return writeFrame(w, data)
}

// sendErrorCode writes a bare status byte with no payload frame.
func sendErrorCode(w io.Writer, code byte) {
	_, _ = w.Write([]byte{code})
}
