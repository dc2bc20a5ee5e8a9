// Package dht implements a Kademlia-style Distributed Hash Table.
//
// Identifiers are 160-bit values ordered by the XOR metric. Each node keeps
// a routing table of 160 capacity-bounded k-buckets and a TTL'd key/value
// store, and participates in four RPCs: PING, FIND_NODE, FIND_VALUE and
// STORE. The Manager ties these together: it bootstraps from seed
// addresses, runs round-synchronous iterative lookups with bounded
// parallelism, replicates stored values to the K closest peers, and
// periodically sweeps expired values and refreshes quiet buckets.
//
// Example:
//
//	mgr := dht.NewManager(dht.SHA1Digest([]byte("node-1")), "127.0.0.1", 9000, tr, nil)
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop()
package dht
