package base

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/ValentinKolb/dStats/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

var (
	clientRequests = metrics.GetOrCreateCounter("dstats_rpc_client_requests_total")
	clientRetries  = metrics.GetOrCreateCounter("dstats_rpc_client_retries_total")
	clientDials    = metrics.GetOrCreateCounter("dstats_rpc_client_dials_total")
)

var errTransportClosed = errors.New("transport is closed")

// initialBackoff is the pause before the first retry, it doubles per retry
const initialBackoff = 50 * time.Millisecond

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection based on the provided configuration
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

type result struct {
	payload []byte
	err     error
}

// link is one established net connection. Requests in flight on it wait in
// pending until the reader delivers their response or the link dies.
type link struct {
	conn    net.Conn
	writeMu sync.Mutex
	pending *xsync.MapOf[uint64, chan result]
	dead    atomic.Bool
}

// slot is a pooled connection to one endpoint. A slot whose link died is
// redialed by the next request that picks it.
type slot struct {
	endpoint string
	mu       sync.Mutex
	link     *link
}

// clientTransport multiplexes requests over a pool of slots, independent of
// the transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector IClientConnector
	config    common.ClientConfig

	mu    sync.RWMutex
	slots []*slot

	next      atomic.Uint64
	requestID atomic.Uint64
	closed    atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{connector: connector}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

// Connect dials ConnectionsPerEndpoint connections to every endpoint. It
// fails only if no connection at all could be established.
func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	t.closeSlots()
	t.config = config
	t.closed.Store(false)

	perEndpoint := max(config.Transport.ConnectionsPerEndpoint, 1)
	slots := make([]*slot, 0, len(config.Transport.Endpoints)*perEndpoint)
	live := 0
	for _, endpoint := range config.Transport.Endpoints {
		for i := 0; i < perEndpoint; i++ {
			s := &slot{endpoint: endpoint}
			s.mu.Lock()
			_, err := t.dialLocked(s)
			s.mu.Unlock()
			if err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, perEndpoint, err)
			} else {
				live++
			}
			slots = append(slots, s)
		}
	}
	if live == 0 {
		return fmt.Errorf("failed to connect to any endpoint")
	}

	t.mu.Lock()
	t.slots = slots
	t.mu.Unlock()

	Logger.Infof("Connected %d of %d connections to %d endpoints using %s transport",
		live, len(slots), len(config.Transport.Endpoints), t.connector.GetName())
	return nil
}

// Send delivers req to shardId and waits for the response. Failed attempts
// are retried on the next connection with exponential backoff, up to
// RetryCount attempts in total.
func (t *clientTransport) Send(shardId uint64, req []byte) ([]byte, error) {
	attempts := max(t.config.Transport.RetryCount, 1)
	backoff := initialBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		s := t.pick()
		if s == nil {
			return nil, fmt.Errorf("no active connections available")
		}

		clientRequests.Inc()
		resp, err := t.roundTrip(s, shardId, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if t.closed.Load() {
			break
		}
		Logger.Debugf("Request attempt %d/%d to %s failed: %v", attempt, attempts, s.endpoint, err)

		if attempt < attempts {
			clientRetries.Inc()
			time.Sleep(jitter(backoff))
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("failed to send request to shard %d after %d attempts: %w", shardId, attempts, lastErr)
}

func (t *clientTransport) Close() error {
	t.closed.Store(true)
	t.closeSlots()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// roundTrip sends one request on s and waits for its response or the timeout
func (t *clientTransport) roundTrip(s *slot, shardID uint64, req []byte) ([]byte, error) {
	l, err := t.linkOf(s)
	if err != nil {
		return nil, err
	}

	id := t.requestID.Add(1)
	ch := make(chan result, 1)
	l.pending.Store(id, ch)
	defer l.pending.Delete(id)
	if l.dead.Load() {
		return nil, fmt.Errorf("connection to %s is closed", s.endpoint)
	}

	timeout := time.Duration(t.config.TimeoutSecond) * time.Second
	l.writeMu.Lock()
	if timeout > 0 {
		_ = l.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	err = writeFrame(l.conn, frame{shard: shardID, request: id, payload: req})
	l.writeMu.Unlock()
	if err != nil {
		t.drop(s, l, err)
		return nil, err
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case r := <-ch:
		return r.payload, r.err
	case <-expired:
		return nil, fmt.Errorf("request %d to %s timed out after %s", id, s.endpoint, timeout)
	}
}

// pick selects the next slot round robin
func (t *clientTransport) pick() *slot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	switch len(t.slots) {
	case 0:
		return nil
	case 1:
		return t.slots[0]
	default:
		return t.slots[(t.next.Add(1)-1)%uint64(len(t.slots))]
	}
}

// linkOf returns the live link of s, redialing it if needed
func (t *clientTransport) linkOf(s *slot) (*link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link != nil {
		return s.link, nil
	}
	if t.closed.Load() {
		return nil, errTransportClosed
	}
	return t.dialLocked(s)
}

// dialLocked connects s and starts its reader. s.mu must be held.
func (t *clientTransport) dialLocked(s *slot) (*link, error) {
	conn, err := t.connector.Connect(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", s.endpoint, err)
	}
	if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %w", s.endpoint, err)
	}
	clientDials.Inc()

	l := &link{conn: conn, pending: xsync.NewMapOf[uint64, chan result]()}
	s.link = l
	go t.readResponses(s, l)
	return l, nil
}

// readResponses hands every response frame of l to the waiting request
func (t *clientTransport) readResponses(s *slot, l *link) {
	for {
		f, err := readFrame(l.conn, nil)
		if err != nil {
			if !t.closed.Load() && !l.dead.Load() {
				Logger.Warningf("Connection to %s lost: %v", s.endpoint, err)
			}
			t.drop(s, l, err)
			return
		}
		if ch, ok := l.pending.LoadAndDelete(f.request); ok {
			ch <- result{payload: f.payload}
		} else {
			Logger.Warningf("Received response for unknown request ID %d with shard ID %d", f.request, f.shard)
		}
	}
}

// drop detaches l from s, closes it and fails all requests waiting on it
func (t *clientTransport) drop(s *slot, l *link, cause error) {
	l.dead.Store(true)
	s.mu.Lock()
	if s.link == l {
		s.link = nil
	}
	s.mu.Unlock()
	_ = l.conn.Close()

	l.pending.Range(func(id uint64, _ chan result) bool {
		if ch, ok := l.pending.LoadAndDelete(id); ok {
			ch <- result{err: fmt.Errorf("connection to %s lost: %w", s.endpoint, cause)}
		}
		return true
	})
}

// closeSlots closes every link and empties the pool
func (t *clientTransport) closeSlots() {
	t.mu.Lock()
	slots := t.slots
	t.slots = nil
	t.mu.Unlock()

	for _, s := range slots {
		s.mu.Lock()
		l := s.link
		s.link = nil
		s.mu.Unlock()
		if l != nil {
			l.dead.Store(true)
			_ = l.conn.Close()
		}
	}
}

// jitter spreads d by +-10%
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.9 + 0.2*rand.Float64()))
}
