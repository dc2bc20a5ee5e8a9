// Package kaddir implements a decentralized peer/user directory.
//
// Given a user identifier, kaddir finds network endpoints that can reach
// that user without any central registry. Nodes form a Kademlia-style
// Distributed Hash Table (see the dht package) and publish user-presence
// records (see the presence package) into it with a bounded lifetime,
// re-announcing them while they run.
//
// Example:
//
//	opts := kaddir.NewOptions()
//	opts.Port = 8471
//	opts.BootstrapAddresses = []string{"203.0.113.5:8470"}
//
//	node, err := kaddir.New(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Stop()
//
//	rec, ok := node.Resolve(ctx, "alice")
package kaddir
