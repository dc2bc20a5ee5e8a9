package dht

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Bucket is a capacity-bounded, staleness-aware set of peers sharing a
// distance range from the local node. Bounding bucket size bounds total
// routing-table memory and per-lookup fan-out; preferring eviction of stale
// peers over live ones keeps the table biased toward reachable nodes.
type Bucket struct {
	mu          sync.RWMutex
	peers       []*PeerRecord
	capacity    int
	staleWindow time.Duration
	lastUpdated time.Time
	clock       clock.Clock
}

// newBucket creates an empty bucket with the given capacity and staleness
// window.
func newBucket(capacity int, staleWindow time.Duration, clk clock.Clock) *Bucket {
	return &Bucket{
		peers:       make([]*PeerRecord, 0, capacity),
		capacity:    capacity,
		staleWindow: staleWindow,
		clock:       clk,
	}
}

// Add inserts or refreshes a peer. If the peer is already present it is
// replaced, refreshing recency. If the bucket is full, the single oldest
// stale entry is evicted to make room; with no stale entry the add is
// rejected and the bucket is left unchanged.
func (b *Bucket) Add(peer *PeerRecord) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()

	for i, existing := range b.peers {
		if existing.ID == peer.ID {
			b.peers[i] = peer
			b.lastUpdated = now
			return true
		}
	}

	if len(b.peers) < b.capacity {
		b.peers = append(b.peers, peer)
		b.lastUpdated = now
		return true
	}

	// Full: evict the oldest stale entry if there is one.
	oldest := -1
	for i, existing := range b.peers {
		if !existing.Stale(b.staleWindow, now) {
			continue
		}
		if oldest < 0 || existing.LastSeen.Before(b.peers[oldest].LastSeen) {
			oldest = i
		}
	}
	if oldest < 0 {
		return false
	}

	b.peers[oldest] = peer
	b.lastUpdated = now
	return true
}

// LivePeers returns the peers that are not stale, dropping stale entries
// from the bucket as a side effect.
func (b *Bucket) LivePeers() []*PeerRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	live := b.peers[:0]
	for _, peer := range b.peers {
		if !peer.Stale(b.staleWindow, now) {
			live = append(live, peer)
		}
	}
	b.peers = live

	result := make([]*PeerRecord, len(b.peers))
	copy(result, b.peers)
	return result
}

// Closest returns up to n live peers sorted ascending by distance to the
// target.
func (b *Bucket) Closest(target NodeID, n int) []*PeerRecord {
	peers := b.LivePeers()
	sort.Slice(peers, func(i, j int) bool {
		return CompareDistance(peers[i].DistanceTo(target), peers[j].DistanceTo(target)) < 0
	})
	if len(peers) > n {
		peers = peers[:n]
	}
	return peers
}

// Remove drops the peer with the given id, reporting whether it was found.
func (b *Bucket) Remove(id NodeID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, peer := range b.peers {
		if peer.ID == id {
			b.peers = append(b.peers[:i], b.peers[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of entries currently held, stale ones included.
func (b *Bucket) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.peers)
}

// LastUpdated returns the time of the last successful Add.
func (b *Bucket) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdated
}
