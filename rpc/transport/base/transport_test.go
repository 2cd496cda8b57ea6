package base

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopback listens on a random local port and dials whatever it listened on
type loopback struct {
	ready    chan net.Listener
	listener net.Listener
}

func newLoopback() *loopback {
	return &loopback{ready: make(chan net.Listener, 1)}
}

func (l *loopback) GetName() string { return "loopback" }

func (l *loopback) Listen(common.ServerConfig) (net.Listener, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	l.ready <- ln
	return ln, nil
}

func (l *loopback) Connect(endpoint string) (net.Conn, error) {
	return net.Dial("tcp", endpoint)
}

func (l *loopback) UpgradeConnection(net.Conn, common.ServerConfig) error { return nil }

type loopbackClient struct{ *loopback }

func (c loopbackClient) UpgradeConnection(net.Conn, common.ClientConfig) error { return nil }

// startEcho serves a handler that prefixes the shard id to the payload
func startEcho(t *testing.T) (*loopback, string) {
	t.Helper()
	lb := newLoopback()
	srv := NewBaseServerTransport(lb, 1024, 4)
	srv.RegisterHandler(func(shardID uint64, req []byte) []byte {
		return []byte(fmt.Sprintf("%d:%s", shardID, req))
	})
	go func() { _ = srv.Listen(common.ServerConfig{TimeoutSecond: 5}) }()

	select {
	case lb.listener = <-lb.ready:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	t.Cleanup(func() { _ = lb.listener.Close() })
	return lb, lb.listener.Addr().String()
}

func dial(t *testing.T, lb *loopback, endpoint string, conns int) *clientTransport {
	t.Helper()
	c := NewBaseClientTransport(loopbackClient{lb}).(*clientTransport)
	require.NoError(t, c.Connect(common.ClientConfig{
		TimeoutSecond: 5,
		Transport: common.ClientTransportConfig{
			Endpoints:              []string{endpoint},
			RetryCount:             3,
			ConnectionsPerEndpoint: conns,
		},
	}))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSendRoundTrip(t *testing.T) {
	lb, endpoint := startEcho(t)
	c := dial(t, lb, endpoint, 1)

	resp, err := c.Send(100, []byte("record:count"))
	require.NoError(t, err)
	assert.Equal(t, "100:record:count", string(resp))
}

func TestSendConcurrent(t *testing.T) {
	lb, endpoint := startEcho(t)
	c := dial(t, lb, endpoint, 2)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("update:%d", i)
			resp, err := c.Send(uint64(i), []byte(key))
			if err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprintf("%d:%s", i, key); string(resp) != want {
				errs <- fmt.Errorf("got %q, want %q", resp, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestSendRedialsLostConnection(t *testing.T) {
	lb, endpoint := startEcho(t)
	c := dial(t, lb, endpoint, 1)

	_, err := c.Send(1, []byte("a"))
	require.NoError(t, err)

	// kill the link under the client, the next request has to redial
	s := c.pick()
	s.mu.Lock()
	l := s.link
	s.mu.Unlock()
	require.NotNil(t, l)
	_ = l.conn.Close()

	resp, err := c.Send(1, []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, "1:b", string(resp))
}

func TestConnectWithoutEndpoints(t *testing.T) {
	c := NewBaseClientTransport(loopbackClient{newLoopback()})
	assert.Error(t, c.Connect(common.ClientConfig{}))
}

func TestSendAfterClose(t *testing.T) {
	lb, endpoint := startEcho(t)
	c := dial(t, lb, endpoint, 1)
	require.NoError(t, c.Close())

	_, err := c.Send(1, []byte("a"))
	assert.Error(t, err)
}
