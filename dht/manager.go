package dht

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/kaddir/transport"
)

// State tracks the manager's lifecycle: idle → bootstrapping → active →
// stopped. There is no restart; a stopped manager stays stopped.
type State int32

const (
	StateIdle State = iota
	StateBootstrapping
	StateActive
	StateStopped
)

// String renders the state for logs and stats.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBootstrapping:
		return "bootstrapping"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyStarted is returned by Start on a manager that has left the
	// idle state.
	ErrAlreadyStarted = errors.New("dht: manager already started")
	// ErrNotRunning is returned by operations that require an active manager.
	ErrNotRunning = errors.New("dht: manager not running")
)

// Config carries the tunable parameters of a DHT node.
type Config struct {
	// BootstrapAddresses are host:port seeds contacted on Start.
	BootstrapAddresses []string
	// K is the bucket capacity and the replication factor for stores.
	K int
	// Alpha bounds how many peers a lookup contacts per round.
	Alpha int
	// ValueTTL is the lifetime given to values cached by STORE requests.
	ValueTTL time.Duration
	// StalenessWindow is how long a silent peer stays eligible for lookups.
	StalenessWindow time.Duration
	// RefreshWindow is how long a bucket may go without updates before
	// maintenance refreshes it with a lookup.
	RefreshWindow time.Duration
	// MaintenanceInterval is the period of the expiry sweep and bucket
	// refresh loop.
	MaintenanceInterval time.Duration
	// RPCTimeout bounds every remote call.
	RPCTimeout time.Duration
	// Digest derives identifiers; nil means SHA1Digest.
	Digest Digest
	// Clock supplies time; nil means the wall clock.
	Clock clock.Clock
}

// DefaultConfig returns the standard Kademlia parameters.
func DefaultConfig() *Config {
	return &Config{
		K:                   20,
		Alpha:               3,
		ValueTTL:            time.Hour,
		StalenessWindow:     15 * time.Minute,
		RefreshWindow:       time.Hour,
		MaintenanceInterval: 5 * time.Minute,
		RPCTimeout:          5 * time.Second,
	}
}

// Stats is a point-in-time snapshot of a manager's footprint.
type Stats struct {
	NodeID        string
	KnownPeers    int
	StoredValues  int
	ActiveBuckets int
	Running       bool
}

// Manager owns one node's routing table and value store and drives the
// iterative lookup protocol over them. All methods are safe for concurrent
// use; the table and store carry their own locks, which is the explicit
// thread-safe boundary between application handlers and the DHT.
type Manager struct {
	cfg    *Config
	self   *PeerRecord
	table  *RoutingTable
	store  *ValueStore
	client *Client
	digest Digest
	clock  clock.Clock

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager wires a manager for the node identified by localID, reachable
// by other peers at host:port, sending RPCs through t.
func NewManager(localID NodeID, host string, port uint16, t transport.Transport, cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Digest == nil {
		cfg.Digest = SHA1Digest
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	self := NewPeerRecord(localID, host, port, cfg.Clock.Now())
	return &Manager{
		cfg:    cfg,
		self:   self,
		table:  NewRoutingTable(localID, cfg.K, cfg.StalenessWindow, cfg.Clock),
		store:  NewValueStore(cfg.Clock),
		client: NewClient(t, self, cfg.RPCTimeout, cfg.Clock),
		digest: cfg.Digest,
		clock:  cfg.Clock,
	}
}

// LocalID returns the identifier this manager operates as.
func (m *Manager) LocalID() NodeID {
	return m.self.ID
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start bootstraps the node and schedules the maintenance loop. Zero
// reachable bootstrap peers is not an error: the node continues standalone
// with an empty table and still answers inbound traffic.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.state = StateBootstrapping
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"node_id":  m.self.ID.String(),
		"address":  m.self.Addr(),
		"seeds":    len(m.cfg.BootstrapAddresses),
	}).Info("Starting DHT node")

	m.bootstrap(runCtx)

	// Stop may have raced the bootstrap; only a node still bootstrapping
	// becomes active.
	m.mu.Lock()
	if m.state != StateBootstrapping {
		m.mu.Unlock()
		return nil
	}
	m.state = StateActive
	m.wg.Add(1)
	m.mu.Unlock()

	go m.maintenanceLoop(runCtx)
	return nil
}

// Stop cooperatively stops the maintenance loop and marks the manager
// stopped. In-flight RPCs are not force-aborted; they time out naturally.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.state != StateActive && m.state != StateBootstrapping {
		m.mu.Unlock()
		return
	}
	m.state = StateStopped
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "Stop",
		"node_id":  m.self.ID.String(),
	}).Info("DHT node stopped")
}

// bootstrap pings each configured seed and adds responders to the routing
// table, then runs a self-lookup to populate nearby buckets.
func (m *Manager) bootstrap(ctx context.Context) {
	responders := 0
	for _, addr := range m.cfg.BootstrapAddresses {
		if ctx.Err() != nil {
			return
		}
		peer, err := m.provisionalPeer(addr)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "bootstrap",
				"address":  addr,
				"error":    err.Error(),
			}).Warn("Skipping malformed bootstrap address")
			continue
		}

		sender, ok := m.client.Ping(ctx, peer)
		if !ok {
			logrus.WithFields(logrus.Fields{
				"function": "bootstrap",
				"address":  addr,
			}).Debug("Bootstrap peer did not answer")
			continue
		}

		m.table.Add(m.corroborate(peer, sender))
		responders++
	}

	if responders == 0 {
		logrus.WithFields(logrus.Fields{
			"function": "bootstrap",
			"seeds":    len(m.cfg.BootstrapAddresses),
		}).Warn("No bootstrap peer reachable, continuing standalone")
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":   "bootstrap",
		"responders": responders,
	}).Info("Bootstrap complete, running self-lookup")
	m.LookupNodes(ctx, m.self.ID)
}

// provisionalPeer synthesizes a peer record for a bootstrap address. Its
// identity is derived from the address string and stays provisional until a
// PONG corroborates it.
func (m *Manager) provisionalPeer(addr string) (*PeerRecord, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, err
	}

	peer := NewPeerRecord(m.digest([]byte(addr)), host, uint16(port), m.clock.Now())
	peer.Provisional = true
	return peer, nil
}

// corroborate replaces a provisional identity with the one the peer
// reported about itself, when the report is usable.
func (m *Manager) corroborate(peer *PeerRecord, sender *transport.NodeInfo) *PeerRecord {
	if sender == nil {
		return peer
	}
	confirmed, err := PeerFromNodeInfo(*sender, m.clock.Now())
	if err != nil {
		return peer
	}
	if confirmed.ID != peer.ID {
		m.table.Remove(peer.ID)
	}
	return confirmed
}

// LookupNodes runs the iterative Kademlia search for the peers closest to
// target. Each round queries up to Alpha unqueried candidates in parallel,
// merges everything they return into the routing table and the running
// closest-set, and stops when no unqueried candidates remain. Termination
// is by exhaustion of novel candidates, so the queried set is what
// guarantees progress.
func (m *Manager) LookupNodes(ctx context.Context, target NodeID) []*PeerRecord {
	closest := m.table.Closest(target, m.cfg.K)
	queried := map[NodeID]bool{m.self.ID: true}

	frontier := m.nextFrontier(closest, queried)
	for len(frontier) > 0 && ctx.Err() == nil {
		for _, peer := range frontier {
			queried[peer.ID] = true
		}

		discovered := m.findNodeRound(ctx, frontier, target)
		closest = m.mergeClosest(closest, discovered, target)
		frontier = m.nextFrontier(closest, queried)
	}
	return closest
}

// nextFrontier picks up to Alpha unqueried candidates from the closest-set.
func (m *Manager) nextFrontier(closest []*PeerRecord, queried map[NodeID]bool) []*PeerRecord {
	frontier := make([]*PeerRecord, 0, m.cfg.Alpha)
	for _, peer := range closest {
		if len(frontier) == m.cfg.Alpha {
			break
		}
		if !queried[peer.ID] {
			frontier = append(frontier, peer)
		}
	}
	return frontier
}

// findNodeRound fans FIND_NODE out to the whole frontier and joins on the
// batch before returning, so a lookup never has more than Alpha RPCs in
// flight.
func (m *Manager) findNodeRound(ctx context.Context, frontier []*PeerRecord, target NodeID) []*PeerRecord {
	results := make(chan []*PeerRecord, len(frontier))
	var wg sync.WaitGroup
	for _, peer := range frontier {
		wg.Add(1)
		go func(peer *PeerRecord) {
			defer wg.Done()
			results <- m.client.FindNode(ctx, peer, target)
		}(peer)
	}
	wg.Wait()
	close(results)

	var discovered []*PeerRecord
	for batch := range results {
		discovered = append(discovered, batch...)
	}
	return discovered
}

// mergeClosest folds discovered peers into the routing table and the
// running closest-set, re-sorted by distance to target and capped at K.
func (m *Manager) mergeClosest(closest, discovered []*PeerRecord, target NodeID) []*PeerRecord {
	seen := make(map[NodeID]bool, len(closest))
	for _, peer := range closest {
		seen[peer.ID] = true
	}
	for _, peer := range discovered {
		m.table.Add(peer)
		if peer.ID == m.self.ID || seen[peer.ID] {
			continue
		}
		seen[peer.ID] = true
		closest = append(closest, peer)
	}

	sortByDistance(closest, target)
	if len(closest) > m.cfg.K {
		closest = closest[:m.cfg.K]
	}
	return closest
}

// StoreValue replicates (key, value) to the K closest peers and always
// caches it locally so the originating node can resolve its own writes. It
// returns the number of successful remote stores; the error is non-nil only
// when the manager is not active.
func (m *Manager) StoreValue(ctx context.Context, key NodeID, value json.RawMessage, ttl time.Duration) (int, error) {
	if m.State() != StateActive {
		return 0, ErrNotRunning
	}
	if ttl <= 0 {
		ttl = m.cfg.ValueTTL
	}

	peers := m.LookupNodes(ctx, key)

	results := make(chan bool, len(peers))
	var wg sync.WaitGroup
	for _, peer := range peers {
		wg.Add(1)
		go func(peer *PeerRecord) {
			defer wg.Done()
			results <- m.client.Store(ctx, peer, key, value)
		}(peer)
	}
	wg.Wait()
	close(results)

	remote := 0
	for ok := range results {
		if ok {
			remote++
		}
	}

	m.store.Put(key, value, ttl)

	logrus.WithFields(logrus.Fields{
		"function":      "StoreValue",
		"key":           key.String(),
		"remote_stores": remote,
		"candidates":    len(peers),
	}).Debug("Value stored")
	return remote, nil
}

// GetValue resolves key: the local cache answers immediately when it can,
// otherwise an iterative FIND_VALUE search runs, structurally the same as
// LookupNodes but stopping the moment any peer returns the value. A value
// found remotely is cached locally before returning (read-through).
func (m *Manager) GetValue(ctx context.Context, key NodeID) (json.RawMessage, bool) {
	if m.State() != StateActive {
		return nil, false
	}

	if value, ok := m.store.Get(key); ok {
		return value, true
	}

	closest := m.table.Closest(key, m.cfg.K)
	queried := map[NodeID]bool{m.self.ID: true}

	frontier := m.nextFrontier(closest, queried)
	for len(frontier) > 0 && ctx.Err() == nil {
		for _, peer := range frontier {
			queried[peer.ID] = true
		}

		value, discovered := m.findValueRound(ctx, frontier, key)
		if value != nil {
			m.store.Put(key, value, m.cfg.ValueTTL)
			return value, true
		}

		closest = m.mergeClosest(closest, discovered, key)
		frontier = m.nextFrontier(closest, queried)
	}
	return nil, false
}

// findValueRound fans FIND_VALUE out to the frontier. The first value any
// peer returned wins; otherwise the round contributes closer candidates.
func (m *Manager) findValueRound(ctx context.Context, frontier []*PeerRecord, key NodeID) (json.RawMessage, []*PeerRecord) {
	type result struct {
		value json.RawMessage
		peers []*PeerRecord
	}

	results := make(chan result, len(frontier))
	var wg sync.WaitGroup
	for _, peer := range frontier {
		wg.Add(1)
		go func(peer *PeerRecord) {
			defer wg.Done()
			value, peers := m.client.FindValue(ctx, peer, key)
			results <- result{value: value, peers: peers}
		}(peer)
	}
	wg.Wait()
	close(results)

	var discovered []*PeerRecord
	for r := range results {
		if r.value != nil {
			return r.value, nil
		}
		discovered = append(discovered, r.peers...)
	}
	return nil, discovered
}

// maintenanceLoop periodically sweeps expired values and refreshes buckets
// that have gone quiet, until the manager stops.
func (m *Manager) maintenanceLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := m.clock.Ticker(m.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runMaintenance(ctx)
		}
	}
}

// runMaintenance performs one maintenance pass: expiry sweep, then a
// refresh lookup for every bucket that has peers but no recent updates.
func (m *Manager) runMaintenance(ctx context.Context) {
	if removed := m.store.Sweep(); removed > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "runMaintenance",
			"removed":  removed,
		}).Debug("Swept expired values")
	}

	for _, target := range m.table.RefreshTargets(m.cfg.RefreshWindow, m.clock.Now()) {
		if ctx.Err() != nil {
			return
		}
		m.LookupNodes(ctx, target)
	}
}

// NetworkStats snapshots the node's footprint for observability.
func (m *Manager) NetworkStats() Stats {
	return Stats{
		NodeID:        m.self.ID.String(),
		KnownPeers:    m.table.KnownPeers(),
		StoredValues:  m.store.Len(),
		ActiveBuckets: m.table.ActiveBuckets(),
		Running:       m.State() == StateActive,
	}
}

// sortByDistance orders peers ascending by distance to target.
func sortByDistance(peers []*PeerRecord, target NodeID) {
	sort.Slice(peers, func(i, j int) bool {
		return CompareDistance(peers[i].DistanceTo(target), peers[j].DistanceTo(target)) < 0
	})
}
