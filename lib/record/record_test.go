package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		wantErr error
	}{
		{"commit", Record{PrimaryKey: "c", Type: TypeCommit, Commit: &Commit{CommitID: "c"}}, nil},
		{"completion uses blueprint payload", Record{PrimaryKey: "b", Type: TypeBlueprintCompletion, Blueprint: &Blueprint{ID: "nova:x"}}, nil},
		{"missing primary key", Record{Type: TypeCommit, Commit: &Commit{}}, ErrMissingPrimaryKey},
		{"wrong payload", Record{PrimaryKey: "c", Type: TypeCommit, Review: &Review{}}, ErrPayloadMismatch},
		{"two payloads", Record{PrimaryKey: "c", Type: TypeCommit, Commit: &Commit{}, Email: &Email{}}, ErrPayloadMismatch},
		{"no payload", Record{PrimaryKey: "c", Type: TypeMark}, ErrPayloadMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	err := (&Record{PrimaryKey: "x", Type: "wiki"}).Validate()
	assert.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	r := &Record{
		PrimaryKey:   "c",
		Type:         TypeCommit,
		BlueprintIDs: []string{"nova:a"},
		Commit:       &Commit{CommitID: "c", Branches: []string{"master"}},
	}
	c := r.Clone()
	c.BlueprintIDs[0] = "x"
	c.Commit.Branches[0] = "y"
	c.Commit.CommitID = "z"
	assert.Equal(t, "nova:a", r.BlueprintIDs[0])
	assert.Equal(t, "master", r.Commit.Branches[0])
	assert.Equal(t, "c", r.Commit.CommitID)
}

func TestCodec(t *testing.T) {
	r := &Record{
		RecordID:    3,
		PrimaryKey:  "I1:2:john:Code-Review",
		Type:        TypeMark,
		Date:        1385490000,
		UserID:      "john",
		CompanyName: "IBM",
		Mark:        &Mark{ReviewID: "I1", Patch: 2, Type: "Code-Review", Value: -2, Disagreement: true},
	}
	data, err := Encode(r)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = Decode([]byte("not snappy"))
	assert.Error(t, err)
}

func TestUserNormalize(t *testing.T) {
	u := &User{
		Emails: []string{"John@IBM.com", "john@ibm.com", " jd@gmail.com "},
		Companies: []Affiliation{
			{CompanyName: "IBM", EndDate: 0},
			{CompanyName: "HP", EndDate: 500},
			{CompanyName: "Dell", EndDate: 100},
		},
	}
	u.Normalize()
	assert.Equal(t, "john@ibm.com", u.UserID)
	assert.Equal(t, []string{"john@ibm.com", "jd@gmail.com"}, u.Emails)
	assert.Equal(t, []string{"Dell", "HP", "IBM"}, []string{u.Companies[0].CompanyName, u.Companies[1].CompanyName, u.Companies[2].CompanyName})

	u.ExternalID = "John_Doe"
	u.Normalize()
	assert.Equal(t, "john_doe", u.UserID)
	assert.True(t, u.HasEmail("JD@gmail.com"))
	assert.False(t, u.AddEmail("jd@GMAIL.com"))
	assert.True(t, u.AddEmail("john@hp.com"))
}

func TestUserCodec(t *testing.T) {
	u := &User{Seq: 1, UserID: "john", Emails: []string{"john@a.com"}, Core: []CoreEntry{{Module: "nova", Branch: "master"}}}
	data, err := EncodeUser(u)
	require.NoError(t, err)
	got, err := DecodeUser(data)
	require.NoError(t, err)
	assert.Equal(t, u, got)
	assert.True(t, got.IsCore("nova", "master"))
	assert.False(t, got.IsCore("nova", "stable/ocata"))
}

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"record_type":"commit","commit_id":"de7e8f2","author_email":"john@a.com","date":10,"branches":["master"],"coauthor":[{"author_name":"Bill","author_email":"bill@b.com"}]}`))
	require.NoError(t, err)
	assert.Equal(t, TypeCommit, ev.Type)
	require.NotNil(t, ev.Commit)
	assert.Equal(t, "de7e8f2", ev.Commit.CommitID)
	assert.Equal(t, "bill@b.com", ev.Commit.Coauthors[0].AuthorEmail)

	ev, err = DecodeEvent([]byte(`{"record_type":"review","id":"I10","owner":{"username":"bsmith"},"patchSets":[{"number":"2","approvals":[{"type":"Code-Review","value":"-1","by":{"username":"john"}}]}]}`))
	require.NoError(t, err)
	require.NotNil(t, ev.Review)
	assert.Equal(t, FlexInt(2), ev.Review.PatchSets[0].Number)
	assert.Equal(t, FlexInt(-1), ev.Review.PatchSets[0].Approvals[0].Value)

	ev, err = DecodeEvent([]byte(`{"record_type":"bpc","name":"x","module":"nova"}`))
	require.NoError(t, err)
	assert.NotNil(t, ev.Blueprint)
}

func TestDecodeEventErrors(t *testing.T) {
	inputs := map[string]string{
		"unknown type":    `{"record_type":"wiki"}`,
		"missing type":    `{"commit_id":"a"}`,
		"missing field":   `{"record_type":"commit","commit_id":"a"}`,
		"review no owner": `{"record_type":"review","id":"I1","owner":{}}`,
		"bad number":      `{"record_type":"ci","review_id":"I1","driver_name":"d","patch":"two"}`,
		"not json":        `{`,
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidEvent))
		})
	}
}
