package kaddir

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/opd-ai/kaddir/transport"
)

// Options contains configuration for creating a Node.
type Options struct {
	// Host and Port are the address other peers reach this node at.
	Host string
	Port uint16

	// BootstrapAddresses are host:port seeds contacted on Start. Empty
	// means the node starts standalone.
	BootstrapAddresses []string

	// K is the bucket capacity and store replication factor.
	K int
	// Alpha bounds lookup parallelism per round.
	Alpha int

	// ValueTTL is the lifetime of generic stored values.
	ValueTTL time.Duration
	// PresenceTTL is the lifetime of announced presence records; the node
	// re-announces its own record every PresenceTTL/2 while running.
	PresenceTTL time.Duration
	// StalenessWindow is how long a silent peer is still considered live.
	StalenessWindow time.Duration
	// RefreshWindow is how long a bucket may go without updates before
	// maintenance refreshes it.
	RefreshWindow time.Duration
	// MaintenanceInterval is the period of the maintenance loop.
	MaintenanceInterval time.Duration
	// RPCTimeout bounds every remote call.
	RPCTimeout time.Duration

	// UserID is the identity the node announces itself as. Empty means a
	// fresh UUID is generated.
	UserID string
	// Username is the display name carried in the node's own presence
	// record.
	Username string

	// Transport overrides the default HTTP transport. When set, the node
	// does not bind an HTTP listener; the caller wires inbound messages to
	// HandleMessage itself.
	Transport transport.Transport
	// Clock overrides the wall clock, for tests.
	Clock clock.Clock
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		Host:                "127.0.0.1",
		Port:                8470,
		K:                   20,
		Alpha:               3,
		ValueTTL:            time.Hour,
		PresenceTTL:         30 * time.Minute,
		StalenessWindow:     15 * time.Minute,
		RefreshWindow:       time.Hour,
		MaintenanceInterval: 5 * time.Minute,
		RPCTimeout:          5 * time.Second,
	}
}
