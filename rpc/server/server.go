package server

import (
	"fmt"
	"github.com/ValentinKolb/dStats/lib/db"
	"github.com/ValentinKolb/dStats/lib/db/engines/maple"
	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/ValentinKolb/dStats/lib/store/dstore"
	"github.com/ValentinKolb/dStats/lib/store/lstore"
	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/ValentinKolb/dStats/rpc/serializer"
	"github.com/ValentinKolb/dStats/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"os/signal"
	"runtime"
	"syscall"
	"time"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the store it encapsulates and the adapter
// that handles requests for the store
type serverShard struct {
	Store   store.IStore
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

// RPCServer routes requests of a transport to the shards it hosts.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]
}

// handle decodes a request for shardId, lets the shard's adapter process it and
// encodes the response. Errors are always reported as an error message.
func (s *RPCServer) handle(shardId uint64, req []byte) []byte {
	var msg common.Message
	var respMsg common.Message

	shard, ok := s.shards.Load(shardId)
	if !ok {
		respMsg = *common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = *common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		respMsg = *shard.Adapter.Handle(&msg, shard.Store)
		metrics.GetOrCreateCounter(fmt.Sprintf(`dstats_rpc_requests_total{type=%q}`, msg.MsgType.String())).Inc()
	}

	val, err := s.serializer.Serialize(respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize response for shard %d: %v", shardId, err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

// addLocalShard hosts a shard backed by an in-process store
func (s *RPCServer) addLocalShard(shardID uint64, factory store.DBFactory, adapter IRPCServerAdapter) {
	s.shards.Store(shardID, serverShard{
		Store:   lstore.NewLocalStore(factory),
		Adapter: adapter,
	})
}

func (s *RPCServer) init() error {

	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}
	Logger.Infof(s.config.String())

	// Function to create a new database instance
	dbFactory := func() db.KVDB { return maple.NewMapleDB(nil) }

	// Only create the NodeHost if we have remote shards
	var nodeHost *dragonboat.NodeHost
	var err error
	if s.config.HasRemoteShard() {
		nodeHost, err = dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
	}

	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	/*
		Note: A single RPC Server can have any number of remote and or local shards.
		Each shard can be a store or a lock manager.
	*/

	for _, shardConfig := range s.config.Shards {
		switch shardConfig.Type {
		case common.ShardTypeLocalIStore:
			s.addLocalShard(shardConfig.ShardID, dbFactory, NewIStoreServerAdapter())
			Logger.Infof("created local store for shard %d", shardConfig.ShardID)

		case common.ShardTypeLocalILockManager:
			s.addLocalShard(shardConfig.ShardID, dbFactory, NewLockManagerServerAdapter())
			Logger.Infof("created local lock manager for shard %d", shardConfig.ShardID)

		case common.ShardTypeRemoteIStore, common.ShardTypeRemoteILockManager:
			if nodeHost == nil {
				return fmt.Errorf("node host is nil, cannot create remote store")
			}

			if err := nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, dstore.CreateStateMachineFactory(dbFactory), s.config.ToDragonboatConfig(shardConfig.ShardID)); err != nil {
				return fmt.Errorf("failed to start shard %d: %w", shardConfig.ShardID, err)
			}

			var adapter IRPCServerAdapter = NewIStoreServerAdapter()
			if shardConfig.Type == common.ShardTypeRemoteILockManager {
				adapter = NewLockManagerServerAdapter()
			}

			s.shards.Store(shardConfig.ShardID, serverShard{
				Store:   dstore.NewDistributedStore(nodeHost, shardConfig.ShardID, timeout),
				Adapter: adapter,
			})
			Logger.Infof("started raft replica for shard %d (%s)", shardConfig.ShardID, shardConfig.Type)

		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}
	}

	Logger.Infof("dStats server setup completed successfully")

	s.transport.RegisterHandler(s.handle)

	return nil
}

// Serve starts the RPC server
// This function will also initialize the server plus the shards and start the transport layer
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}
