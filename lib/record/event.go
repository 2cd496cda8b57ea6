package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidEvent is returned by DecodeEvent for events of unknown type or missing required fields.
var ErrInvalidEvent = errors.New("invalid event")

// Event is a raw crawler event tagged with its record type. Exactly one
// payload is set; both blueprint types carry a RawBlueprint.
type Event struct {
	Type        Type
	Commit      *RawCommit
	Review      *RawReview
	Email       *RawEmail
	Blueprint   *RawBlueprint
	Member      *RawMember
	Translation *RawTranslation
	CI          *RawCI
}

// FlexInt decodes both JSON numbers and numeric strings, review systems send either.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*f = FlexInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("expected number or numeric string, got %s", b)
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("expected numeric string, got %q", s)
	}
	*f = FlexInt(n)
	return nil
}

type RawAuthor struct {
	AuthorName  string `json:"author_name"`
	AuthorEmail string `json:"author_email"`
}

type RawCommit struct {
	CommitID     string      `json:"commit_id"`
	ChangeIDs    []string    `json:"change_id"`
	AuthorName   string      `json:"author_name"`
	AuthorEmail  string      `json:"author_email"`
	Date         int64       `json:"date"`
	Subject      string      `json:"subject"`
	Message      string      `json:"message"`
	LinesAdded   int         `json:"lines_added"`
	LinesDeleted int         `json:"lines_deleted"`
	FilesChanged int         `json:"files_changed"`
	ReleaseName  string      `json:"release_name"`
	Module       string      `json:"module"`
	Branches     []string    `json:"branches"`
	Coauthors    []RawAuthor `json:"coauthor"`
}

// RawAccount is a review system account.
type RawAccount struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type RawApproval struct {
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Value       FlexInt    `json:"value"`
	GrantedOn   int64      `json:"grantedOn"`
	By          RawAccount `json:"by"`
}

type RawPatchSet struct {
	Number    FlexInt       `json:"number"`
	Revision  string        `json:"revision"`
	Ref       string        `json:"ref"`
	Uploader  RawAccount    `json:"uploader"`
	CreatedOn int64         `json:"createdOn"`
	Approvals []RawApproval `json:"approvals"`
}

type RawReview struct {
	ID          string        `json:"id"`
	Subject     string        `json:"subject"`
	Owner       RawAccount    `json:"owner"`
	CreatedOn   int64         `json:"createdOn"`
	LastUpdated int64         `json:"lastUpdated"`
	Status      string        `json:"status"`
	URL         string        `json:"url"`
	Module      string        `json:"module"`
	Branch      string        `json:"branch"`
	PatchSets   []RawPatchSet `json:"patchSets"`
}

type RawEmail struct {
	MessageID   string `json:"message_id"`
	AuthorName  string `json:"author_name"`
	AuthorEmail string `json:"author_email"`
	Date        int64  `json:"date"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	Module      string `json:"module"`
}

type RawBlueprint struct {
	Name                 string `json:"name"`
	Module               string `json:"module"`
	Title                string `json:"title"`
	DefinitionStatus     string `json:"definition_status"`
	ImplementationStatus string `json:"implementation_status"`
	Owner                string `json:"owner"`
	Assignee             string `json:"assignee"`
	DateCreated          int64  `json:"date_created"`
	DateCompleted        int64  `json:"date_completed"`
	WebLink              string `json:"web_link"`
}

type RawMember struct {
	MemberID     string `json:"member_id"`
	MemberName   string `json:"member_name"`
	MemberURI    string `json:"member_uri"`
	LdapID       string `json:"ldap_id"`
	DateJoined   int64  `json:"date_joined"`
	CompanyDraft string `json:"company_draft"`
	Country      string `json:"country"`
	Email        string `json:"email"`
}

type RawTranslation struct {
	UserID     string `json:"user_id"`
	Date       int64  `json:"date"`
	Language   string `json:"language"`
	Module     string `json:"module"`
	Project    string `json:"project"`
	Branch     string `json:"branch"`
	Translated int    `json:"translated"`
	Approved   int    `json:"approved"`
}

type RawCI struct {
	ReviewID      string  `json:"review_id"`
	Patch         FlexInt `json:"patch"`
	DriverName    string  `json:"driver_name"`
	DriverCompany string  `json:"driver_company"`
	Success       bool    `json:"success"`
	Message       string  `json:"message"`
	Date          int64   `json:"date"`
	Module        string  `json:"module"`
	Branch        string  `json:"branch"`
}

// DecodeEvent parses one crawler event. The record_type field selects the
// payload type; unknown types and missing required fields are reported as
// ErrInvalidEvent.
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		Type Type `json:"record_type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	ev := Event{Type: head.Type}
	var err error
	switch head.Type {
	case TypeCommit:
		ev.Commit, err = decodeInto[RawCommit](data)
		if err == nil {
			err = require(head.Type, "commit_id", ev.Commit.CommitID, "author_email", ev.Commit.AuthorEmail)
		}
	case TypeReview:
		ev.Review, err = decodeInto[RawReview](data)
		if err == nil {
			err = require(head.Type, "id", ev.Review.ID)
		}
		if err == nil && ev.Review.Owner.Email == "" && ev.Review.Owner.Username == "" {
			err = fmt.Errorf("%w: review %s: owner has neither email nor username", ErrInvalidEvent, ev.Review.ID)
		}
	case TypeEmail:
		ev.Email, err = decodeInto[RawEmail](data)
		if err == nil {
			err = require(head.Type, "message_id", ev.Email.MessageID, "author_email", ev.Email.AuthorEmail)
		}
	case TypeBlueprintDraft, TypeBlueprintCompletion:
		ev.Blueprint, err = decodeInto[RawBlueprint](data)
		if err == nil {
			err = require(head.Type, "name", ev.Blueprint.Name, "module", ev.Blueprint.Module)
		}
	case TypeMember:
		ev.Member, err = decodeInto[RawMember](data)
		if err == nil {
			err = require(head.Type, "member_id", ev.Member.MemberID)
		}
	case TypeTranslation:
		ev.Translation, err = decodeInto[RawTranslation](data)
		if err == nil {
			err = require(head.Type, "user_id", ev.Translation.UserID)
		}
	case TypeCI:
		ev.CI, err = decodeInto[RawCI](data)
		if err == nil {
			err = require(head.Type, "review_id", ev.CI.ReviewID, "driver_name", ev.CI.DriverName)
		}
	default:
		return Event{}, fmt.Errorf("%w: unknown record_type %q", ErrInvalidEvent, head.Type)
	}
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}

func decodeInto[T any](data []byte) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return v, nil
}

// require expects name/value pairs and fails on the first empty value
func require(t Type, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("%w: %s event is missing %q", ErrInvalidEvent, t, pairs[i])
		}
	}
	return nil
}
