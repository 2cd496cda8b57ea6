package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri        string
		scheme     string
		endpoints  []string
		shard      uint64
		serializer string
	}{
		{"memory://", "memory", nil, DefaultStoreShard, "snappy"},
		{"tcp://localhost:8080", "tcp", []string{"localhost:8080"}, DefaultStoreShard, "snappy"},
		{"tcp://a:1,b:2/300?serializer=gob", "tcp", []string{"a:1", "b:2"}, 300, "gob"},
		{"http://localhost:8080/101", "http", []string{"http://localhost:8080"}, 101, "snappy"},
		{"unix:///tmp/dstats.sock?shard=7&serializer=json", "unix", []string{"/tmp/dstats.sock"}, 7, "json"},
	}

	for _, tc := range tests {
		t.Run(tc.uri, func(t *testing.T) {
			target, err := ParseURI(tc.uri, DefaultStoreShard)
			require.NoError(t, err)
			assert.Equal(t, tc.scheme, target.Scheme)
			assert.Equal(t, tc.endpoints, target.Config.Transport.Endpoints)
			assert.Equal(t, tc.shard, target.ShardID)
			assert.Equal(t, tc.serializer, target.Serializer)
		})
	}
}

func TestParseURIOptions(t *testing.T) {
	target, err := ParseURI("tcp://localhost:1?timeout=3&retries=5&conns=4", DefaultStoreShard)
	require.NoError(t, err)
	assert.Equal(t, 3, target.Config.TimeoutSecond)
	assert.Equal(t, 5, target.Config.Transport.RetryCount)
	assert.Equal(t, 4, target.Config.Transport.ConnectionsPerEndpoint)
}

func TestParseURIErrors(t *testing.T) {
	for _, uri := range []string{
		"redis://localhost:6379",
		"tcp://",
		"tcp://localhost:1/abc",
		"unix://",
		"http://localhost:1?timeout=x",
		"://broken",
		"",
	} {
		_, err := ParseURI(uri, DefaultStoreShard)
		assert.Error(t, err, uri)
	}
}

func TestOpenMemoryIsShared(t *testing.T) {
	a, err := Open("memory://shared-test")
	require.NoError(t, err)
	defer a.Close()
	b, err := Open("memory://shared-test")
	require.NoError(t, err)
	other, err := Open("memory://other-test")
	require.NoError(t, err)

	require.NoError(t, a.Set("k", []byte("v")))

	v, ok, err := b.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	_, ok, err = other.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenInvalidSerializer(t *testing.T) {
	_, err := Open("tcp://localhost:1?serializer=xml")
	assert.Error(t, err)
}

func TestOpenLockManagerMemory(t *testing.T) {
	locks, err := OpenLockManager("memory://locks-test")
	require.NoError(t, err)

	ok, owner, err := locks.AcquireLock("writer")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = locks.AcquireLock("writer")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = locks.ReleaseLock("writer", owner)
	require.NoError(t, err)
	assert.True(t, ok)
}
