package dht

import (
	"math/rand"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
)

// RoutingTable is an array of IDBits buckets covering the whole identifier
// space relative to the local node. The bucket for a peer is a pure
// function of its distance from the local id, so per-bucket deduplication
// is enough to guarantee at most one live entry per NodeID table-wide.
type RoutingTable struct {
	localID NodeID
	buckets [IDBits]*Bucket
}

// NewRoutingTable creates a routing table for the given local identifier
// with buckets of capacity k.
func NewRoutingTable(localID NodeID, k int, staleWindow time.Duration, clk clock.Clock) *RoutingTable {
	rt := &RoutingTable{localID: localID}
	for i := range rt.buckets {
		rt.buckets[i] = newBucket(k, staleWindow, clk)
	}
	return rt
}

// LocalID returns the identifier the table is centered on.
func (rt *RoutingTable) LocalID() NodeID {
	return rt.localID
}

// Add routes a peer to its bucket. The local node itself is never stored.
func (rt *RoutingTable) Add(peer *PeerRecord) bool {
	if peer.ID == rt.localID {
		return false
	}
	return rt.buckets[BucketIndex(rt.localID, peer.ID)].Add(peer)
}

// Remove drops a peer wherever it lives, reporting whether it was found.
// Used when a provisional bootstrap identity is corrected.
func (rt *RoutingTable) Remove(id NodeID) bool {
	return rt.buckets[BucketIndex(rt.localID, id)].Remove(id)
}

// Closest merges live peers across all buckets and returns up to n sorted
// ascending by distance to the target. The global merge (rather than only
// the target's natural bucket) matters because individual buckets may be
// sparsely populated near the edges of the space.
func (rt *RoutingTable) Closest(target NodeID, n int) []*PeerRecord {
	if n <= 0 {
		return nil
	}

	var peers []*PeerRecord
	for _, bucket := range rt.buckets {
		peers = append(peers, bucket.LivePeers()...)
	}

	sort.Slice(peers, func(i, j int) bool {
		return CompareDistance(peers[i].DistanceTo(target), peers[j].DistanceTo(target)) < 0
	})
	if len(peers) > n {
		peers = peers[:n]
	}
	return peers
}

// RandomPeers samples up to n live peers across all buckets. Used to seed
// exploratory lookups.
func (rt *RoutingTable) RandomPeers(n int) []*PeerRecord {
	var peers []*PeerRecord
	for _, bucket := range rt.buckets {
		peers = append(peers, bucket.LivePeers()...)
	}

	rand.Shuffle(len(peers), func(i, j int) {
		peers[i], peers[j] = peers[j], peers[i]
	})
	if len(peers) > n {
		peers = peers[:n]
	}
	return peers
}

// KnownPeers counts the entries currently held across all buckets.
func (rt *RoutingTable) KnownPeers() int {
	total := 0
	for _, bucket := range rt.buckets {
		total += bucket.Len()
	}
	return total
}

// ActiveBuckets counts the buckets currently holding at least one peer.
func (rt *RoutingTable) ActiveBuckets() int {
	active := 0
	for _, bucket := range rt.buckets {
		if bucket.Len() > 0 {
			active++
		}
	}
	return active
}

// RefreshTargets returns a random lookup target inside the distance range
// of every bucket that holds peers but has not been updated within the
// refresh window. Looking those targets up refreshes the bucket and may
// discover new peers for it.
func (rt *RoutingTable) RefreshTargets(window time.Duration, now time.Time) []NodeID {
	var targets []NodeID
	for i, bucket := range rt.buckets {
		if bucket.Len() == 0 {
			continue
		}
		if now.Sub(bucket.LastUpdated()) < window {
			continue
		}
		targets = append(targets, RandomIDInBucket(rt.localID, i))
	}
	return targets
}
