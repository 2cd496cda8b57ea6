// Package tcp implements the TCP socket transport of the dStats RPC layer on top of
// the connection handling in package base.
//
// Both connectors apply the same socket tuning (TCP_NODELAY, buffer sizes,
// keepalive, linger) from the SocketConf and TCPConf settings. The default server
// read buffer is 512 KB, which fits a full SetMulti batch of records.
package tcp
