package transport

import (
	"context"
	"fmt"
	"sync"
)

// MemoryNetwork is an in-process registry of message handlers keyed by
// address. It lets multiple DHT nodes talk to each other inside one process
// without sockets, which is how the multi-node tests and examples are wired.
type MemoryNetwork struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewMemoryNetwork creates an empty in-process network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		handlers: make(map[string]Handler),
	}
}

// Register attaches a handler to an address, making it reachable.
func (n *MemoryNetwork) Register(addr string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[addr] = h
}

// Unregister makes an address unreachable; subsequent exchanges to it fail.
func (n *MemoryNetwork) Unregister(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.handlers, addr)
}

// Transport returns a Transport view of the network for one participant.
func (n *MemoryNetwork) Transport() *MemoryTransport {
	return &MemoryTransport{network: n}
}

// MemoryTransport delivers messages synchronously to handlers registered on
// its MemoryNetwork.
type MemoryTransport struct {
	network *MemoryNetwork
}

// Exchange invokes the handler registered at addr with req. An unknown or
// unregistered address fails, standing in for an unreachable peer.
func (t *MemoryTransport) Exchange(ctx context.Context, addr string, req Message) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	t.network.mu.RLock()
	h, ok := t.network.handlers[addr]
	t.network.mu.RUnlock()

	if !ok {
		return Message{}, fmt.Errorf("exchange with %s: no listener", addr)
	}
	return h(req), nil
}

// Close is a no-op; the network outlives its transports.
func (t *MemoryTransport) Close() error {
	return nil
}
