package dht

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/opd-ai/kaddir/transport"
)

// PeerRecord represents a remote participant known to the local node. At
// most one live copy per NodeID exists in the whole routing table.
type PeerRecord struct {
	ID       NodeID
	Host     string
	Port     uint16
	LastSeen time.Time

	// Provisional marks an identity synthesized from an address string
	// (bootstrap peers) that has not yet been corroborated by a real RPC
	// round-trip.
	Provisional bool
}

// NewPeerRecord creates a record for a peer first seen at the given time.
func NewPeerRecord(id NodeID, host string, port uint16, now time.Time) *PeerRecord {
	return &PeerRecord{
		ID:       id,
		Host:     host,
		Port:     port,
		LastSeen: now,
	}
}

// Addr returns the peer's dialable host:port address.
func (p *PeerRecord) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port)))
}

// Stale reports whether the peer has been silent longer than the staleness
// window.
func (p *PeerRecord) Stale(window time.Duration, now time.Time) bool {
	return now.Sub(p.LastSeen) > window
}

// DistanceTo computes the XOR distance between this peer and a target.
func (p *PeerRecord) DistanceTo(target NodeID) NodeID {
	return Distance(p.ID, target)
}

// NodeInfo converts the record to its wire descriptor.
func (p *PeerRecord) NodeInfo() transport.NodeInfo {
	return transport.NodeInfo{
		NodeID:   p.ID.String(),
		Host:     p.Host,
		Port:     p.Port,
		LastSeen: float64(p.LastSeen.UnixNano()) / float64(time.Second),
	}
}

// PeerFromNodeInfo validates a wire descriptor and builds a record from it.
// The record's LastSeen is set to now rather than trusted from the wire;
// recency is a local observation.
func PeerFromNodeInfo(info transport.NodeInfo, now time.Time) (*PeerRecord, error) {
	id, err := ParseNodeID(info.NodeID)
	if err != nil {
		return nil, err
	}
	if info.Host == "" {
		return nil, errors.New("peer descriptor missing host")
	}
	if info.Port == 0 {
		return nil, errors.New("peer descriptor missing port")
	}
	return NewPeerRecord(id, info.Host, info.Port, now), nil
}
