package client

import (
	"fmt"
	"github.com/ValentinKolb/dStats/lib/db"
	"github.com/ValentinKolb/dStats/lib/db/engines/maple"
	"github.com/ValentinKolb/dStats/lib/lockmgr"
	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/ValentinKolb/dStats/lib/store/lstore"
	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/ValentinKolb/dStats/rpc/serializer"
	"github.com/ValentinKolb/dStats/rpc/transport"
	"github.com/ValentinKolb/dStats/rpc/transport/http"
	"github.com/ValentinKolb/dStats/rpc/transport/tcp"
	"github.com/ValentinKolb/dStats/rpc/transport/unix"
	"github.com/puzpuzpuz/xsync/v3"
	"io"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultStoreShard is the shard used when a store URI names none
	DefaultStoreShard uint64 = 100
	// DefaultLockShard is the shard used when a lock manager URI names none
	DefaultLockShard uint64 = 200
)

// Handle is a store opened from a URI. Close releases the transport, if any.
type Handle interface {
	store.IStore
	io.Closer
}

// Target is the parsed form of a store URI.
type Target struct {
	Scheme     string
	Name       string // memory:// only
	ShardID    uint64
	Serializer string
	Config     common.ClientConfig
}

// memoryStores holds the named in-process stores, so that every Open of the
// same memory:// URI within a process sees the same data.
var memoryStores = xsync.NewMapOf[string, store.IStore]()

// ParseURI parses a store URI:
//
//	memory://[name]
//	tcp://host:port[,host:port...][/shard]
//	http://host:port[,host:port...][/shard]
//	unix:///path/to/socket[?shard=N]
//
// The query parameters serializer (json, gob, snappy), timeout (seconds),
// retries and conns tune the client. defaultShard is used when the URI names no shard.
func ParseURI(uri string, defaultShard uint64) (Target, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Target{}, fmt.Errorf("invalid store uri %q: %w", uri, err)
	}

	q := u.Query()
	t := Target{
		Scheme:     u.Scheme,
		ShardID:    defaultShard,
		Serializer: q.Get("serializer"),
		Config: common.ClientConfig{
			TimeoutSecond: 10,
			Transport: common.ClientTransportConfig{
				RetryCount:             3,
				ConnectionsPerEndpoint: 1,
				TCPConf:                common.TCPConf{TCPNoDelay: true},
			},
		},
	}
	if t.Serializer == "" {
		t.Serializer = "snappy"
	}

	for name, dst := range map[string]*int{
		"timeout": &t.Config.TimeoutSecond,
		"retries": &t.Config.Transport.RetryCount,
		"conns":   &t.Config.Transport.ConnectionsPerEndpoint,
	} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return Target{}, fmt.Errorf("invalid store uri %q: bad %s %q", uri, name, v)
			}
			*dst = n
		}
	}

	shard := q.Get("shard")

	switch u.Scheme {
	case "memory":
		t.Name = u.Host + u.Path
		return t, nil

	case "tcp", "http":
		if u.Host == "" {
			return Target{}, fmt.Errorf("invalid store uri %q: missing host", uri)
		}
		for _, host := range strings.Split(u.Host, ",") {
			if u.Scheme == "http" {
				host = "http://" + host
			}
			t.Config.Transport.Endpoints = append(t.Config.Transport.Endpoints, host)
		}
		if p := strings.Trim(u.Path, "/"); p != "" {
			shard = p
		}

	case "unix":
		if u.Path == "" {
			return Target{}, fmt.Errorf("invalid store uri %q: missing socket path", uri)
		}
		t.Config.Transport.Endpoints = []string{u.Path}

	default:
		return Target{}, fmt.Errorf("invalid store uri %q: unsupported scheme %q", uri, u.Scheme)
	}

	if shard != "" {
		id, err := strconv.ParseUint(shard, 10, 64)
		if err != nil {
			return Target{}, fmt.Errorf("invalid store uri %q: bad shard %q", uri, shard)
		}
		t.ShardID = id
	}

	return t, nil
}

// newTransport returns the client transport for a network scheme
func (t Target) newTransport() (transport.IRPCClientTransport, error) {
	switch t.Scheme {
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	case "http":
		return http.NewHttpClientTransport(), nil
	default:
		return nil, fmt.Errorf("scheme %q has no transport", t.Scheme)
	}
}

// memoryStore returns the named in-process store, creating it on first use
func (t Target) memoryStore() store.IStore {
	s, _ := memoryStores.LoadOrCompute(t.Name, func() store.IStore {
		return lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })
	})
	return s
}

// Open resolves a store URI (see ParseURI) and connects to the store.
// An unparseable URI or an unreachable server is reported as an error.
func Open(uri string) (Handle, error) {
	t, err := ParseURI(uri, DefaultStoreShard)
	if err != nil {
		return nil, err
	}

	if t.Scheme == "memory" {
		return nopCloser{t.memoryStore()}, nil
	}

	s, err := serializer.ByName(t.Serializer)
	if err != nil {
		return nil, err
	}
	tr, err := t.newTransport()
	if err != nil {
		return nil, err
	}

	h, err := NewRPCStore(t.ShardID, t.Config, tr, s)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", uri, err)
	}
	Logger.Debugf("opened store %s (shard %d, serializer %s)", t.Scheme, t.ShardID, t.Serializer)
	return h, nil
}

// OpenLockManager resolves a URI like Open, but returns a lock manager.
// For memory:// the locks are kept in the named in-process store.
func OpenLockManager(uri string) (lockmgr.ILockManager, error) {
	t, err := ParseURI(uri, DefaultLockShard)
	if err != nil {
		return nil, err
	}

	if t.Scheme == "memory" {
		return lockmgr.NewLockManager(t.memoryStore()), nil
	}

	s, err := serializer.ByName(t.Serializer)
	if err != nil {
		return nil, err
	}
	tr, err := t.newTransport()
	if err != nil {
		return nil, err
	}
	return NewRPCLockMgr(t.ShardID, t.Config, tr, s)
}

// nopCloser adds a no-op Close to an in-process store
type nopCloser struct {
	store.IStore
}

func (nopCloser) Close() error { return nil }
