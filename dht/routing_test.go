package dht

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(clk clock.Clock) *RoutingTable {
	var local NodeID
	return NewRoutingTable(local, 20, testStaleWindow, clk)
}

func TestRoutingTableRejectsSelf(t *testing.T) {
	clk := clock.NewMock()
	rt := newTestTable(clk)

	self := NewPeerRecord(rt.LocalID(), "127.0.0.1", 9000, clk.Now())
	assert.False(t, rt.Add(self))
	assert.Equal(t, 0, rt.KnownPeers())
}

func TestRoutingTableAddRoutesByDistance(t *testing.T) {
	clk := clock.NewMock()
	rt := newTestTable(clk)

	near := bucketPeer(clk, 1)   // bucket 0
	far := bucketPeer(clk, 0x80) // bucket 7
	require.True(t, rt.Add(near))
	require.True(t, rt.Add(far))

	assert.Equal(t, 2, rt.KnownPeers())
	assert.Equal(t, 2, rt.ActiveBuckets())
	assert.Equal(t, 1, rt.buckets[0].Len())
	assert.Equal(t, 1, rt.buckets[7].Len())
}

func TestRoutingTableClosest(t *testing.T) {
	clk := clock.NewMock()
	rt := newTestTable(clk)

	// Peers spread across several buckets; the merge must still order them
	// globally by distance to the target.
	for _, last := range []byte{1, 2, 8, 0x40, 0x81} {
		require.True(t, rt.Add(bucketPeer(clk, last)))
	}

	closest := rt.Closest(testID(3), 3)
	require.Len(t, closest, 3)
	assert.Equal(t, testID(2), closest[0].ID) // distance 1
	assert.Equal(t, testID(1), closest[1].ID) // distance 2
	assert.Equal(t, testID(8), closest[2].ID) // distance 11

	seen := make(map[NodeID]bool)
	for _, p := range closest {
		assert.False(t, seen[p.ID], "closest-set must not contain duplicates")
		seen[p.ID] = true
	}

	assert.Empty(t, rt.Closest(testID(3), 0))
}

func TestRoutingTableRandomPeers(t *testing.T) {
	clk := clock.NewMock()
	rt := newTestTable(clk)

	for _, last := range []byte{1, 2, 3, 4, 5} {
		require.True(t, rt.Add(bucketPeer(clk, last)))
	}

	sample := rt.RandomPeers(3)
	assert.Len(t, sample, 3)

	all := rt.RandomPeers(64)
	assert.Len(t, all, 5, "sampling more than known returns everything")
}

func TestRoutingTableRemove(t *testing.T) {
	clk := clock.NewMock()
	rt := newTestTable(clk)

	peer := bucketPeer(clk, 7)
	require.True(t, rt.Add(peer))
	assert.True(t, rt.Remove(peer.ID))
	assert.False(t, rt.Remove(peer.ID))
	assert.Equal(t, 0, rt.KnownPeers())
}

func TestRoutingTableRefreshTargets(t *testing.T) {
	clk := clock.NewMock()
	rt := newTestTable(clk)

	require.True(t, rt.Add(bucketPeer(clk, 1)))

	assert.Empty(t, rt.RefreshTargets(time.Hour, clk.Now()), "recently updated buckets need no refresh")

	clk.Add(time.Hour + time.Minute)
	targets := rt.RefreshTargets(time.Hour, clk.Now())
	require.Len(t, targets, 1)
	assert.Equal(t, 0, BucketIndex(rt.LocalID(), targets[0]),
		"refresh target must fall inside the quiet bucket's distance range")
}
