// Package transport defines the DHT wire format and the request/response
// channels that carry it.
//
// Every message travels as a single JSON envelope (Message) tagged with a
// MessageType from a closed set. The Transport interface abstracts the
// channel itself: HTTPTransport POSTs messages to a peer's /dht endpoint,
// while MemoryNetwork provides a synchronous in-process channel for tests
// and examples. All transport failures are plain errors that callers treat
// as "no answer" from the peer.
package transport
