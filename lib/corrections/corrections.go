package corrections

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/ValentinKolb/dStats/lib/runtime"
	"github.com/lni/dragonboat/v4/logger"
	"gopkg.in/yaml.v3"
)

var log = logger.GetLogger("corrections")

type document struct {
	Corrections     []map[string]any `yaml:"corrections"`
	UserCorrections []map[string]any `yaml:"user_corrections"`
}

// Set is a loaded corrections document.
type Set struct {
	Records []runtime.Correction
	Users   []runtime.UserCorrection
}

// Len returns the number of valid corrections.
func (cs *Set) Len() int {
	return len(cs.Records) + len(cs.Users)
}

// Apply patches the records and then the users of storage. It returns how
// many records and users changed.
func (cs *Set) Apply(storage *runtime.Storage) (records, users int, err error) {
	records, err = storage.ApplyCorrections(cs.Records)
	if err != nil {
		return records, 0, err
	}
	users, err = storage.ApplyUserCorrections(cs.Users)
	return records, users, err
}

// Load decodes a corrections document. Record corrections without a primary
// key and user corrections without a user id are logged and left out.
func Load(r io.Reader) (*Set, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode corrections: %w", err)
	}

	cs := &Set{
		Records: make([]runtime.Correction, 0, len(doc.Corrections)),
		Users:   make([]runtime.UserCorrection, 0, len(doc.UserCorrections)),
	}
	for i, entry := range doc.Corrections {
		pk, fields, err := keyed(entry, "primary_key", runtime.ErrMissingPrimaryKey)
		if err != nil {
			log.Warningf("rejecting correction #%d: %v", i, err)
			continue
		}
		cs.Records = append(cs.Records, runtime.Correction{PrimaryKey: pk, Fields: fields})
	}
	for i, entry := range doc.UserCorrections {
		id, fields, err := keyed(entry, "user_id", runtime.ErrMissingUserID)
		if err != nil {
			log.Warningf("rejecting user correction #%d: %v", i, err)
			continue
		}
		cs.Users = append(cs.Users, runtime.UserCorrection{UserID: id, Fields: fields})
	}

	total := len(doc.Corrections) + len(doc.UserCorrections)
	log.Infof("loaded %d corrections, rejected %d", cs.Len(), total-cs.Len())
	return cs, nil
}

// keyed returns the string under key and the entry JSON encoded. A missing
// or blank key yields errMissing.
func keyed(entry map[string]any, key string, errMissing error) (string, []byte, error) {
	id, _ := entry[key].(string)
	if strings.TrimSpace(id) == "" {
		return "", nil, errMissing
	}
	fields, err := json.Marshal(entry)
	if err != nil {
		return "", nil, fmt.Errorf("%s %q: %w", key, id, err)
	}
	return id, fields, nil
}

// LoadURI loads corrections from a local path or an http(s) URL.
func LoadURI(ctx context.Context, uri string) (*Set, error) {
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		f, err := os.Open(strings.TrimPrefix(uri, "file://"))
		if err != nil {
			return nil, fmt.Errorf("open corrections: %w", err)
		}
		defer f.Close()
		return Load(f)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch corrections: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch corrections: %s returned %s", uri, resp.Status)
	}
	return Load(resp.Body)
}
