package dump

import (
	"bytes"
	"context"
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/ValentinKolb/dStats/lib/db"
	"github.com/ValentinKolb/dStats/lib/db/engines/maple"
	"github.com/ValentinKolb/dStats/lib/record"
	"github.com/ValentinKolb/dStats/lib/runtime"
	"github.com/ValentinKolb/dStats/lib/store/lstore"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage() *runtime.Storage {
	return runtime.New(lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) }))
}

func collect(t *testing.T, r *Reader) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte)
	for k, v := range r.Pairs() {
		out[k] = v
	}
	return out
}

func TestWriterReaderRoundTrip(t *testing.T) {
	pairs := map[string][]byte{
		"record:0":     bytes.Repeat([]byte("commit "), 100),
		"record:count": []byte("1"),
		"empty":        {},
		"vcs:git%3A%2F%2Fexample.org%2Fnova.git:master": []byte("deadbeef"),
	}

	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	for _, k := range slices.Sorted(maps.Keys(pairs)) {
		require.NoError(t, w.Add(k, pairs[k]))
	}
	require.NoError(t, w.Close())
	assert.Equal(t, 4, w.Count())
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte(Magic)))

	r, err := NewReader(&buf)
	require.NoError(t, err)
	got := collect(t, r)
	require.NoError(t, r.Err())
	require.Len(t, got, len(pairs))
	for k, v := range pairs {
		assert.Equal(t, string(v), string(got[k]), k)
	}
}

func TestReaderBadMagic(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("NOTADUMP\x00\x00\x00")))
	assert.ErrorIs(t, err, ErrBadMagic)

	_, err = NewReader(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestReaderTruncated(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.Add("a", []byte("first")))
	require.NoError(t, w.Add("b", []byte("second")))
	require.NoError(t, w.Close())

	data := buf.Bytes()
	r, err := NewReader(bytes.NewReader(data[:len(data)-3]))
	require.NoError(t, err)
	got := collect(t, r)
	assert.ErrorIs(t, r.Err(), ErrCorrupt)
	assert.Equal(t, map[string][]byte{"a": []byte("first")}, got)
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		uri     string
		want    Target
		wantErr bool
	}{
		{uri: "/tmp/dump.bin", want: Target{Path: "/tmp/dump.bin"}},
		{uri: "file:///tmp/dump.bin", want: Target{Path: "/tmp/dump.bin"}},
		{uri: "s3://backups/dstats/2026-10-15.dump", want: Target{Bucket: "backups", Key: "dstats/2026-10-15.dump"}},
		{uri: "s3://backups", wantErr: true},
		{uri: "s3:///key", wantErr: true},
		{uri: "gs://bucket/key", wantErr: true},
		{uri: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := ParseTarget(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Bucket != "", got.IsS3())
		})
	}
}

func seedStorage(t *testing.T) *runtime.Storage {
	t.Helper()
	s := newTestStorage()
	records := []*record.Record{
		{PrimaryKey: "c1", Type: record.TypeCommit, Module: "nova", Date: 10, Commit: &record.Commit{CommitID: "c1", Branches: []string{"master"}}},
		{PrimaryKey: "r1", Type: record.TypeReview, Module: "nova", Date: 20, Review: &record.Review{ID: "r1"}},
	}
	_, err := s.SetRecords(slices.Values(records), nil)
	require.NoError(t, err)
	require.NoError(t, s.StoreUser(&record.User{Emails: []string{"john@example.com"}}))
	require.NoError(t, s.SetSetting(runtime.SettingReleases, []string{"havana"}))
	return s
}

func assertRestored(t *testing.T, s *runtime.Storage) {
	t.Helper()
	r, err := s.GetByPrimaryKey("r1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.RecordID)

	count, err := s.RecordCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	u, err := s.GetUser("john@example.com")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), u.Seq)

	var releases []string
	ok, err := s.GetSetting(runtime.SettingReleases, &releases)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"havana"}, releases)
}

func TestDumpRestoreLocal(t *testing.T) {
	src := seedStorage(t)
	target, err := ParseTarget(filepath.Join(t.TempDir(), "store.dump"))
	require.NoError(t, err)

	n, err := Dump(context.Background(), target, S3Config{}, src.Export)
	require.NoError(t, err)
	assert.Positive(t, n)

	dst := newTestStorage()
	restored, err := Restore(context.Background(), target, S3Config{}, dst.Import)
	require.NoError(t, err)
	assert.Equal(t, n, restored)
	assertRestored(t, dst)
}

func TestRestoreMissingFile(t *testing.T) {
	target := Target{Path: filepath.Join(t.TempDir(), "missing.dump")}
	_, err := Restore(context.Background(), target, S3Config{}, newTestStorage().Import)
	assert.Error(t, err)
}

// newFakeS3 serves PUT and GET of path-style object URLs from memory
func newFakeS3(t *testing.T) (*s3.Client, map[string][]byte) {
	t.Helper()
	var mu sync.Mutex
	objects := make(map[string][]byte)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			body, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			objects[r.URL.Path] = body
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			body, ok := objects[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			_, _ = w.Write(body)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:                     "us-east-1",
		BaseEndpoint:               aws.String(srv.URL),
		UsePathStyle:               true,
		Credentials:                aws.AnonymousCredentials{},
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
	return client, objects
}

func TestDumpRestoreS3(t *testing.T) {
	client, objects := newFakeS3(t)
	cfg := S3Config{Client: client}
	target, err := ParseTarget("s3://backups/dstats/store.dump")
	require.NoError(t, err)

	n, err := Dump(context.Background(), target, cfg, seedStorage(t).Export)
	require.NoError(t, err)
	require.Contains(t, objects, "/backups/dstats/store.dump")
	assert.True(t, bytes.HasPrefix(objects["/backups/dstats/store.dump"], []byte(Magic)))

	dst := newTestStorage()
	restored, err := Restore(context.Background(), target, cfg, dst.Import)
	require.NoError(t, err)
	assert.Equal(t, n, restored)
	assertRestored(t, dst)
}
