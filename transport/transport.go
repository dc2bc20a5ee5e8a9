package transport

import "context"

// Handler processes one inbound message and produces the response. It never
// fails: malformed or unknown input is answered with an ERROR message.
type Handler func(Message) Message

// Transport sends a typed request to a peer address and returns the typed
// response. Any failure (timeout, refused connection, malformed body) is
// returned as an error; callers treat every error uniformly as "no answer"
// from that peer.
//
// This abstraction allows different request/response channels (HTTP, the
// in-process memory network) to be used interchangeably.
type Transport interface {
	// Exchange sends req to the peer at addr (host:port) and waits for the
	// response, bounded by ctx.
	Exchange(ctx context.Context, addr string, req Message) (Message, error)

	// Close shuts down the transport.
	Close() error
}
