package record

import (
	"errors"
	"fmt"
	"slices"
)

// --------------------------------------------------------------------------
// Record Types
// --------------------------------------------------------------------------

// Type tags the kind of contribution a Record describes.
type Type string

const (
	TypeCommit              Type = "commit"
	TypeReview              Type = "review"
	TypePatch               Type = "patch"
	TypeMark                Type = "mark"
	TypeEmail               Type = "email"
	TypeBlueprintDraft      Type = "bpd"
	TypeBlueprintCompletion Type = "bpc"
	TypeMember              Type = "member"
	TypeTranslation         Type = "i18n"
	TypeCI                  Type = "ci"
)

// Types lists every known record type.
var Types = []Type{
	TypeCommit, TypeReview, TypePatch, TypeMark, TypeEmail,
	TypeBlueprintDraft, TypeBlueprintCompletion, TypeMember, TypeTranslation, TypeCI,
}

// Valid reports whether t is a known record type.
func (t Type) Valid() bool {
	return slices.Contains(Types, t)
}

// Sentinel values used for identity and affiliation.
const (
	CompanyIndependent = "*independent"
	CompanyRobots      = "*robots"
	UserAnonymous      = "*anonymous"
	ModuleUnknown      = "unknown"
)

// --------------------------------------------------------------------------
// Record
// --------------------------------------------------------------------------

// Record is one canonical contribution event. The base fields are shared by
// every type; exactly one payload pointer is set and it must match Type
// (both blueprint types use Blueprint).
type Record struct {
	RecordID     uint64   `json:"record_id"`
	PrimaryKey   string   `json:"primary_key"`
	Type         Type     `json:"record_type"`
	Date         int64    `json:"date"`
	UserID       string   `json:"user_id,omitempty"`
	UserName     string   `json:"user_name,omitempty"`
	AuthorEmail  string   `json:"author_email,omitempty"`
	CompanyName  string   `json:"company_name,omitempty"`
	Module       string   `json:"module,omitempty"`
	Branch       string   `json:"branch,omitempty"`
	Release      string   `json:"release,omitempty"`
	BlueprintIDs []string `json:"blueprint_id,omitempty"`

	// Deleted marks a record retracted by a correction. Readers drop it from
	// their indexes, the store keeps the slot.
	Deleted bool `json:"deleted,omitempty"`

	Commit      *Commit      `json:"commit,omitempty"`
	Review      *Review      `json:"review,omitempty"`
	Patch       *Patch       `json:"patch,omitempty"`
	Mark        *Mark        `json:"mark,omitempty"`
	Email       *Email       `json:"email,omitempty"`
	Blueprint   *Blueprint   `json:"blueprint,omitempty"`
	Member      *Member      `json:"member,omitempty"`
	Translation *Translation `json:"translation,omitempty"`
	CI          *CI          `json:"ci,omitempty"`
}

// Coauthor is an additional author of a commit.
type Coauthor struct {
	UserID      string `json:"user_id,omitempty"`
	UserName    string `json:"author_name,omitempty"`
	AuthorEmail string `json:"author_email"`
}

type Commit struct {
	CommitID     string     `json:"commit_id"`
	ChangeIDs    []string   `json:"change_id,omitempty"`
	Branches     []string   `json:"branches,omitempty"` // sorted set
	Subject      string     `json:"subject,omitempty"`
	Message      string     `json:"message,omitempty"`
	LinesAdded   int        `json:"lines_added"`
	LinesDeleted int        `json:"lines_deleted"`
	FilesChanged int        `json:"files_changed"`
	Loc          int        `json:"loc"`
	BugIDs       []string   `json:"bug_id,omitempty"`
	Coauthors    []Coauthor `json:"coauthors,omitempty"`
}

type Review struct {
	ID           string `json:"id"`
	Subject      string `json:"subject,omitempty"`
	Status       string `json:"status,omitempty"`
	URL          string `json:"url,omitempty"`
	CreatedOn    int64  `json:"created_on"`
	LastUpdated  int64  `json:"last_updated,omitempty"`
	ReviewNumber int    `json:"review_number,omitempty"`
}

type Patch struct {
	ReviewID string `json:"review_id"`
	Number   int    `json:"patch"`
	Revision string `json:"revision,omitempty"`
	Ref      string `json:"ref,omitempty"`
}

type Mark struct {
	ReviewID     string `json:"review_id"`
	Patch        int    `json:"patch"`
	Type         string `json:"type"`
	Value        int    `json:"value"`
	Disagreement bool   `json:"disagreement,omitempty"`
}

type Email struct {
	MessageID string `json:"message_id"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body,omitempty"`
}

type Blueprint struct {
	ID           string `json:"id"` // <module>:<name>
	Name         string `json:"name"`
	Title        string `json:"title,omitempty"`
	Status       string `json:"status,omitempty"`
	MentionCount int    `json:"mention_count,omitempty"`
	MentionDate  int64  `json:"mention_date,omitempty"`
}

type Member struct {
	MemberID  string `json:"member_id"`
	MemberURI string `json:"member_uri,omitempty"`
	Country   string `json:"country,omitempty"`
}

type Translation struct {
	Language   string `json:"language"`
	Project    string `json:"project,omitempty"`
	Translated int    `json:"translated"`
	Approved   int    `json:"approved"`
}

type CI struct {
	ReviewID string `json:"review_id"`
	Patch    int    `json:"patch"`
	Driver   string `json:"driver"`
	Value    int    `json:"value"` // +1 success, -1 failure
	Message  string `json:"message,omitempty"`
}

// --------------------------------------------------------------------------
// Validation
// --------------------------------------------------------------------------

var (
	ErrMissingPrimaryKey = errors.New("record has no primary key")
	ErrPayloadMismatch   = errors.New("record payload does not match its type")
)

// payloadType returns the type implied by the set payload and how many payloads are set.
func (r *Record) payloadType() (Type, int) {
	var t Type
	n := 0
	set := func(ok bool, typ Type) {
		if ok {
			t = typ
			n++
		}
	}
	set(r.Commit != nil, TypeCommit)
	set(r.Review != nil, TypeReview)
	set(r.Patch != nil, TypePatch)
	set(r.Mark != nil, TypeMark)
	set(r.Email != nil, TypeEmail)
	set(r.Blueprint != nil, TypeBlueprintDraft)
	set(r.Member != nil, TypeMember)
	set(r.Translation != nil, TypeTranslation)
	set(r.CI != nil, TypeCI)
	return t, n
}

// Validate checks the primary key and that exactly one payload matching Type is set.
func (r *Record) Validate() error {
	if r.PrimaryKey == "" {
		return ErrMissingPrimaryKey
	}
	if !r.Type.Valid() {
		return fmt.Errorf("unknown record type %q", r.Type)
	}
	t, n := r.payloadType()
	if r.Type == TypeBlueprintCompletion {
		t = TypeBlueprintCompletion
	}
	if n != 1 || t != r.Type {
		return fmt.Errorf("%w: %s (%d payloads)", ErrPayloadMismatch, r.Type, n)
	}
	return nil
}

// IsBlueprint reports whether r is a blueprint draft or completion.
func (r *Record) IsBlueprint() bool {
	return r.Type == TypeBlueprintDraft || r.Type == TypeBlueprintCompletion
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := *r
	c.BlueprintIDs = slices.Clone(r.BlueprintIDs)
	if r.Commit != nil {
		cm := *r.Commit
		cm.ChangeIDs = slices.Clone(cm.ChangeIDs)
		cm.Branches = slices.Clone(cm.Branches)
		cm.BugIDs = slices.Clone(cm.BugIDs)
		cm.Coauthors = slices.Clone(cm.Coauthors)
		c.Commit = &cm
	}
	c.Review = clonePtr(r.Review)
	c.Patch = clonePtr(r.Patch)
	c.Mark = clonePtr(r.Mark)
	c.Email = clonePtr(r.Email)
	c.Blueprint = clonePtr(r.Blueprint)
	c.Member = clonePtr(r.Member)
	c.Translation = clonePtr(r.Translation)
	c.CI = clonePtr(r.CI)
	return &c
}

// clonePtr copies a payload without reference fields
func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
