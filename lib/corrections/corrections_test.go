package corrections

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/ValentinKolb/dStats/lib/db"
	"github.com/ValentinKolb/dStats/lib/db/engines/maple"
	"github.com/ValentinKolb/dStats/lib/record"
	"github.com/ValentinKolb/dStats/lib/runtime"
	"github.com/ValentinKolb/dStats/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDoc = `
corrections:
  - primary_key: I3f35c7f8
    company_name: IBM
  - company_name: Nobody
  - primary_key: ""
    company_name: Empty
  - primary_key: 6a1623140f27
    commit:
      lines_added: 0
user_corrections:
  - user_id: john_doe
    companies:
      - company_name: Mirantis
        end_date: 0
  - user_name: Nobody
`

func TestLoad(t *testing.T) {
	cs, err := Load(strings.NewReader(testDoc))
	require.NoError(t, err)
	got := cs.Records
	require.Len(t, got, 2, "entries without primary key are rejected")

	assert.Equal(t, "I3f35c7f8", got[0].PrimaryKey)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(got[0].Fields, &fields))
	assert.Equal(t, "IBM", fields["company_name"])

	assert.Equal(t, "6a1623140f27", got[1].PrimaryKey)
	require.NoError(t, json.Unmarshal(got[1].Fields, &fields))
	assert.Equal(t, map[string]any{"lines_added": float64(0)}, fields["commit"])

	require.Len(t, cs.Users, 1, "user corrections without user id are rejected")
	assert.Equal(t, "john_doe", cs.Users[0].UserID)
	assert.JSONEq(t, `{"user_id": "john_doe", "companies": [{"company_name": "Mirantis", "end_date": 0}]}`, string(cs.Users[0].Fields))
	assert.Equal(t, 3, cs.Len())
}

func TestApply(t *testing.T) {
	s := runtime.New(lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) }))
	_, err := s.SetRecords(slices.Values([]*record.Record{{
		PrimaryKey: "I3f35c7f8",
		Type:       record.TypeReview,
		UserID:     "john_doe",
		Review:     &record.Review{ID: "I3f35c7f8"},
	}}), nil)
	require.NoError(t, err)
	require.NoError(t, s.StoreUser(&record.User{ExternalID: "john_doe", Companies: []record.Affiliation{{CompanyName: "IBM"}}}))

	cs, err := Load(strings.NewReader(testDoc))
	require.NoError(t, err)
	records, users, err := cs.Apply(s)
	require.NoError(t, err)
	assert.Equal(t, 1, records, "corrections for unknown records are skipped")
	assert.Equal(t, 1, users)

	r, err := s.GetByPrimaryKey("I3f35c7f8")
	require.NoError(t, err)
	assert.Equal(t, "IBM", r.CompanyName)
	u, err := s.GetUser("john_doe")
	require.NoError(t, err)
	assert.Equal(t, []record.Affiliation{{CompanyName: "Mirantis"}}, u.Companies)
}

func TestLoadJSONAndEmpty(t *testing.T) {
	cs, err := Load(strings.NewReader(`{"corrections": [{"primary_key": "a", "deleted": true}]}`))
	require.NoError(t, err)
	require.Len(t, cs.Records, 1)
	assert.JSONEq(t, `{"primary_key": "a", "deleted": true}`, string(cs.Records[0].Fields))
	assert.Empty(t, cs.Users)

	cs, err = Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, cs.Len())

	_, err = Load(strings.NewReader("corrections: [unclosed"))
	assert.Error(t, err)
}

func TestLoadURI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrections.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testDoc), 0o644))

	cs, err := LoadURI(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, cs.Len())

	cs, err = LoadURI(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, 3, cs.Len())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/corrections.yaml" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(testDoc))
	}))
	defer srv.Close()

	cs, err = LoadURI(context.Background(), srv.URL+"/corrections.yaml")
	require.NoError(t, err)
	assert.Len(t, cs.Records, 2)
	assert.Len(t, cs.Users, 1)

	_, err = LoadURI(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
	_, err = LoadURI(context.Background(), filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}
