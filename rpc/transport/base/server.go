package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/ValentinKolb/dStats/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
)

var (
	serverFrames      = metrics.GetOrCreateCounter("dstats_rpc_server_frames_total")
	serverConnections = metrics.GetOrCreateCounter("dstats_rpc_server_connections_total")
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport accepts connections and runs one session per connection
type serverTransport struct {
	connector IServerConnector
	handler   transport.ServerHandleFunc
	config    common.ServerConfig
	buffers   sync.Pool
	workers   int
}

// session serves the frames of one connection. Up to cap(slots) frames are
// handled concurrently, responses may leave in any order.
type session struct {
	t       *serverTransport
	conn    net.Conn
	timeout time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup
	writeMu sync.Mutex
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a server transport that reads frames into
// pooled buffers of bufferSize and handles up to workersPerConn frames of a
// connection at once.
func NewBaseServerTransport(connector IServerConnector, bufferSize int, workersPerConn int) transport.IRPCServerTransport {
	t := &serverTransport{
		connector: connector,
		workers:   max(workersPerConn, 1),
	}
	t.buffers.New = func() any {
		buf := make([]byte, bufferSize)
		return &buf
	}
	return t
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

// Listen accepts connections until the listener is closed.
func (t *serverTransport) Listen(config common.ServerConfig) error {
	t.config = config
	if config.Transport.WorkersPerConn > 0 {
		t.workers = config.Transport.WorkersPerConn
	}

	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	Logger.Infof("Starting %s server on %s with %d workers per connection",
		t.connector.GetName(), config.Transport.Endpoint, t.workers)

	for {
		conn, err := listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			Logger.Errorf("Accept error: %v", err)
			continue
		}
		if err := t.connector.UpgradeConnection(conn, config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			continue
		}

		serverConnections.Inc()
		s := &session{
			t:       t,
			conn:    conn,
			timeout: time.Duration(config.TimeoutSecond) * time.Second,
			slots:   make(chan struct{}, t.workers),
		}
		go s.run()
	}
}

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// run reads frames until the peer goes away, then waits for the frames in flight
func (s *session) run() {
	defer s.conn.Close()
	defer s.wg.Wait()

	for {
		bufp := s.t.buffers.Get().(*[]byte)
		f, err := readFrame(s.conn, *bufp)
		if err != nil {
			s.t.buffers.Put(bufp)
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				Logger.Debugf("Connection from %s closed", s.conn.RemoteAddr())
			default:
				Logger.Warningf("Dropping connection from %s: %v", s.conn.RemoteAddr(), err)
			}
			return
		}

		s.slots <- struct{}{}
		s.wg.Add(1)
		go s.dispatch(f, bufp)
	}
}

// dispatch runs the handler for f and writes the response frame
func (s *session) dispatch(f frame, bufp *[]byte) {
	defer func() {
		s.t.buffers.Put(bufp)
		<-s.slots
		s.wg.Done()
	}()

	start := time.Now()
	resp := s.t.handler(f.shard, f.payload)
	serverFrames.Inc()
	Logger.Debugf("Processed request %d for shard %d in %s", f.request, f.shard, time.Since(start))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
			Logger.Errorf("Failed to set write deadline: %v", err)
			return
		}
	}
	if err := writeFrame(s.conn, frame{shard: f.shard, request: f.request, payload: resp}); err != nil {
		Logger.Errorf("Failed to write response: %v", err)
	}
}
