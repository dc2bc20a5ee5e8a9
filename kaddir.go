package kaddir

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/kaddir/dht"
	"github.com/opd-ai/kaddir/presence"
	"github.com/opd-ai/kaddir/transport"
)

var (
	// ErrAlreadyRunning is returned by Start on a node that is already running.
	ErrAlreadyRunning = errors.New("kaddir: node already running")
	// ErrStopped is returned by Start on a node that was stopped; a node
	// does not restart.
	ErrStopped = errors.New("kaddir: node stopped")
)

// Stats is a point-in-time snapshot of a node's DHT footprint.
type Stats struct {
	NodeID        string
	KnownPeers    int
	StoredValues  int
	ActiveBuckets int
	Running       bool
}

// Node is one participant in the presence directory. It owns a DHT manager,
// serves inbound DHT traffic, and keeps its own presence record announced
// while running.
type Node struct {
	opts    *Options
	userID  string
	manager *dht.Manager

	transport     transport.Transport
	ownsTransport bool
	server        *http.Server
	clock         clock.Clock

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	selfRecord *presence.Record
}

// New creates a node from the given options. A nil options pointer and any
// zero fields fall back to NewOptions defaults. When no user id is
// configured, a fresh UUID is generated; the node's DHT identifier is the
// digest of its user id.
func New(opts *Options) (*Node, error) {
	if opts == nil {
		opts = NewOptions()
	}
	applyDefaults(opts)

	if opts.Host == "" {
		return nil, errors.New("kaddir: host required")
	}
	if opts.Port == 0 {
		return nil, errors.New("kaddir: port required")
	}

	userID := opts.UserID
	if userID == "" {
		userID = uuid.NewString()
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	tr := opts.Transport
	ownsTransport := false
	if tr == nil {
		tr = transport.NewHTTPTransport(opts.RPCTimeout)
		ownsTransport = true
	}

	localID := dht.SHA1Digest([]byte(userID))
	manager := dht.NewManager(localID, opts.Host, opts.Port, tr, &dht.Config{
		BootstrapAddresses:  opts.BootstrapAddresses,
		K:                   opts.K,
		Alpha:               opts.Alpha,
		ValueTTL:            opts.ValueTTL,
		StalenessWindow:     opts.StalenessWindow,
		RefreshWindow:       opts.RefreshWindow,
		MaintenanceInterval: opts.MaintenanceInterval,
		RPCTimeout:          opts.RPCTimeout,
		Clock:               clk,
	})

	node := &Node{
		opts:          opts,
		userID:        userID,
		manager:       manager,
		transport:     tr,
		ownsTransport: ownsTransport,
		clock:         clk,
		selfRecord: &presence.Record{
			UserID:    userID,
			Username:  opts.Username,
			Endpoints: []string{net.JoinHostPort(opts.Host, strconv.Itoa(int(opts.Port)))},
		},
	}
	return node, nil
}

// applyDefaults fills zero-valued tunables from NewOptions.
func applyDefaults(opts *Options) {
	defaults := NewOptions()
	if opts.K <= 0 {
		opts.K = defaults.K
	}
	if opts.Alpha <= 0 {
		opts.Alpha = defaults.Alpha
	}
	if opts.ValueTTL <= 0 {
		opts.ValueTTL = defaults.ValueTTL
	}
	if opts.PresenceTTL <= 0 {
		opts.PresenceTTL = defaults.PresenceTTL
	}
	if opts.StalenessWindow <= 0 {
		opts.StalenessWindow = defaults.StalenessWindow
	}
	if opts.RefreshWindow <= 0 {
		opts.RefreshWindow = defaults.RefreshWindow
	}
	if opts.MaintenanceInterval <= 0 {
		opts.MaintenanceInterval = defaults.MaintenanceInterval
	}
	if opts.RPCTimeout <= 0 {
		opts.RPCTimeout = defaults.RPCTimeout
	}
}

// UserID returns the identity the node announces itself as.
func (n *Node) UserID() string {
	return n.userID
}

// HandleMessage answers one inbound DHT message. Callers that inject their
// own transport wire their receive path to this method; the default HTTP
// listener does the same internally.
func (n *Node) HandleMessage(req transport.Message) transport.Message {
	return n.manager.HandleMessage(req)
}

// Start brings the node up: it binds the DHT listener (when the node owns
// its transport), bootstraps the DHT, announces the node's own presence,
// and begins re-announcing it every PresenceTTL/2.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return ErrAlreadyRunning
	}
	if n.manager.State() != dht.StateIdle {
		n.mu.Unlock()
		return ErrStopped
	}
	n.running = true
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.mu.Unlock()

	if n.ownsTransport {
		if err := n.listen(); err != nil {
			n.mu.Lock()
			n.running = false
			n.mu.Unlock()
			cancel()
			return err
		}
	}

	if err := n.manager.Start(runCtx); err != nil {
		cancel()
		n.shutdownServer()
		n.wg.Wait()
		n.mu.Lock()
		n.running = false
		n.mu.Unlock()
		return err
	}

	n.announceSelf(runCtx)

	n.wg.Add(1)
	go n.refreshLoop(runCtx)

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"user_id":  n.userID,
		"address":  net.JoinHostPort(n.opts.Host, strconv.Itoa(int(n.opts.Port))),
	}).Info("Node started")
	return nil
}

// listen binds the HTTP listener serving POST /dht into HandleMessage.
func (n *Node) listen() error {
	addr := net.JoinHostPort(n.opts.Host, strconv.Itoa(int(n.opts.Port)))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("kaddir: bind %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(transport.DHTPath, transport.NewHTTPHandler(n.HandleMessage))
	n.server = &http.Server{Handler: mux}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithFields(logrus.Fields{
				"function": "listen",
				"address":  addr,
				"error":    err.Error(),
			}).Error("DHT listener failed")
		}
	}()
	return nil
}

// shutdownServer drains the HTTP listener if one is bound. It is safe to
// call when the node never listened.
func (n *Node) shutdownServer() {
	if n.server == nil {
		return
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := n.server.Shutdown(shutdownCtx); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "shutdownServer",
			"error":    err.Error(),
		}).Debug("Listener shutdown")
	}
	n.server = nil
}

// Stop cooperatively shuts the node down: the refresh loop and maintenance
// stop, the listener closes, and in-flight RPCs time out naturally.
func (n *Node) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	cancel := n.cancel
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	n.manager.Stop()
	n.shutdownServer()
	if n.ownsTransport {
		_ = n.transport.Close()
	}
	n.wg.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "Stop",
		"user_id":  n.userID,
	}).Info("Node stopped")
}

// Announce publishes a presence record under its user's key with the
// presence TTL. It reports true when the record is resolvable afterwards,
// which the local cache write alone guarantees. Announcing the node's own
// user id also updates the record the refresh loop re-announces.
func (n *Node) Announce(ctx context.Context, rec presence.Record) bool {
	raw, err := rec.Value()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Announce",
			"user_id":  rec.UserID,
			"error":    err.Error(),
		}).Warn("Refusing to announce invalid record")
		return false
	}

	key := dht.DeriveKey(dht.SHA1Digest, presence.KeySeed(rec.UserID))
	remote, err := n.manager.StoreValue(ctx, key, raw, n.opts.PresenceTTL)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Announce",
			"user_id":  rec.UserID,
			"error":    err.Error(),
		}).Warn("Announce rejected")
		return false
	}

	if rec.UserID == n.userID {
		n.mu.Lock()
		n.selfRecord = &rec
		n.mu.Unlock()
	}

	logrus.WithFields(logrus.Fields{
		"function":      "Announce",
		"user_id":       rec.UserID,
		"remote_stores": remote,
	}).Info("Presence announced")
	return true
}

// Resolve looks a user's presence record up, locally or across the network.
func (n *Node) Resolve(ctx context.Context, userID string) (*presence.Record, bool) {
	key := dht.DeriveKey(dht.SHA1Digest, presence.KeySeed(userID))
	raw, ok := n.manager.GetValue(ctx, key)
	if !ok {
		return nil, false
	}

	rec, err := presence.FromValue(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Resolve",
			"user_id":  userID,
			"error":    err.Error(),
		}).Warn("Resolved value is not a presence record")
		return nil, false
	}
	return rec, true
}

// Stats snapshots the node's DHT footprint.
func (n *Node) Stats() Stats {
	s := n.manager.NetworkStats()
	return Stats{
		NodeID:        s.NodeID,
		KnownPeers:    s.KnownPeers,
		StoredValues:  s.StoredValues,
		ActiveBuckets: s.ActiveBuckets,
		Running:       s.Running,
	}
}

// announceSelf publishes the node's current self record, stamping its
// last-seen time.
func (n *Node) announceSelf(ctx context.Context) {
	n.mu.Lock()
	rec := *n.selfRecord
	n.mu.Unlock()

	rec.LastSeen = float64(n.clock.Now().UnixNano()) / float64(time.Second)
	n.Announce(ctx, rec)
}

// refreshLoop re-announces the node's own presence every PresenceTTL/2 so
// the record never expires out of the network while the node runs.
func (n *Node) refreshLoop(ctx context.Context) {
	defer n.wg.Done()

	ticker := n.clock.Ticker(n.opts.PresenceTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.announceSelf(ctx)
		}
	}
}
