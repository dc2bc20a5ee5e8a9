package dht

import (
	"context"
	"encoding/json"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/kaddir/transport"
)

// Client issues the four DHT RPCs to remote peers. Every call is bounded by
// the RPC timeout, and every failure (timeout, refused connection, ERROR
// response, undecodable reply) collapses to a zero result. Peers that do
// not answer simply contribute nothing to the current round.
type Client struct {
	transport transport.Transport
	self      *PeerRecord
	timeout   time.Duration
	clock     clock.Clock
}

// NewClient creates an RPC client identifying itself as self on the wire.
func NewClient(t transport.Transport, self *PeerRecord, timeout time.Duration, clk clock.Clock) *Client {
	return &Client{
		transport: t,
		self:      self,
		timeout:   timeout,
		clock:     clk,
	}
}

// exchange sends one request with the RPC timeout applied and returns the
// response, or false for any failure.
func (c *Client) exchange(ctx context.Context, peer *PeerRecord, req transport.Message) (transport.Message, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.transport.Exchange(ctx, peer.Addr(), req)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "exchange",
			"peer":     peer.Addr(),
			"type":     string(req.Type),
			"error":    err.Error(),
		}).Debug("RPC failed, treating as no answer")
		return transport.Message{}, false
	}
	return resp, true
}

// sender builds the wire descriptor recipients learn the caller from.
func (c *Client) sender() *transport.NodeInfo {
	info := c.self.NodeInfo()
	info.LastSeen = float64(c.clock.Now().UnixNano()) / float64(time.Second)
	return &info
}

// Ping probes a peer for liveness. On success it returns the responder's
// own descriptor, which corroborates provisional bootstrap identities.
func (c *Client) Ping(ctx context.Context, peer *PeerRecord) (*transport.NodeInfo, bool) {
	resp, ok := c.exchange(ctx, peer, transport.Message{
		Type:   transport.MessageTypePing,
		Sender: c.sender(),
	})
	if !ok || resp.Type != transport.MessageTypePong {
		return nil, false
	}
	return resp.Sender, true
}

// FindNode asks a peer for its closest known peers to target. A failed or
// malformed exchange yields an empty slice.
func (c *Client) FindNode(ctx context.Context, peer *PeerRecord, target NodeID) []*PeerRecord {
	resp, ok := c.exchange(ctx, peer, transport.Message{
		Type:   transport.MessageTypeFindNode,
		Sender: c.sender(),
		Target: target.String(),
	})
	if !ok || resp.Type != transport.MessageTypeFoundNodes {
		return nil
	}
	return c.decodeNodes(resp.Nodes)
}

// FindValue asks a peer for the value under key. The peer answers with
// either the value or its closest peers to the key; exactly one of the two
// results is populated on success.
func (c *Client) FindValue(ctx context.Context, peer *PeerRecord, key NodeID) (json.RawMessage, []*PeerRecord) {
	resp, ok := c.exchange(ctx, peer, transport.Message{
		Type:   transport.MessageTypeFindValue,
		Sender: c.sender(),
		Key:    key.String(),
	})
	if !ok {
		return nil, nil
	}
	switch resp.Type {
	case transport.MessageTypeFoundValue:
		return resp.Value, nil
	case transport.MessageTypeFoundNodes:
		return nil, c.decodeNodes(resp.Nodes)
	default:
		return nil, nil
	}
}

// Store asks a peer to cache (key, value) with its default TTL.
func (c *Client) Store(ctx context.Context, peer *PeerRecord, key NodeID, value json.RawMessage) bool {
	resp, ok := c.exchange(ctx, peer, transport.Message{
		Type:   transport.MessageTypeStore,
		Sender: c.sender(),
		Key:    key.String(),
		Value:  value,
	})
	return ok && resp.Type == transport.MessageTypeStored
}

// decodeNodes converts wire descriptors into peer records, skipping
// undecodable entries and the local node itself.
func (c *Client) decodeNodes(infos []transport.NodeInfo) []*PeerRecord {
	now := c.clock.Now()
	peers := make([]*PeerRecord, 0, len(infos))
	for _, info := range infos {
		peer, err := PeerFromNodeInfo(info, now)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "decodeNodes",
				"node_id":  info.NodeID,
				"error":    err.Error(),
			}).Debug("Skipping undecodable peer descriptor")
			continue
		}
		if peer.ID == c.self.ID {
			continue
		}
		peers = append(peers, peer)
	}
	return peers
}
