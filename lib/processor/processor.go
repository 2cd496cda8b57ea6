package processor

import (
	"fmt"
	"iter"
	"strings"

	"github.com/ValentinKolb/dStats/lib/defaults"
	"github.com/ValentinKolb/dStats/lib/record"
	"github.com/ValentinKolb/dStats/lib/runtime"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var log = logger.GetLogger("processor")

var (
	eventsProcessed = metrics.GetOrCreateCounter("dstats_events_processed_total")
	usersCreated    = metrics.GetOrCreateCounter("dstats_users_created_total")
)

// Processor turns raw events into canonical records. It resolves every event
// to a user and a company and keeps the users in the record store current.
//
// A Processor is not safe for concurrent use.
type Processor struct {
	storage  *runtime.Storage
	defaults *defaults.Defaults

	domains     domainIndex
	independent string
	// lower-cased company alias -> company name
	companyAliases map[string]string
	modules        moduleIndex

	// email, external id and user id -> user
	users map[string]*record.User
	// user id of a merged away user -> survivor
	mergedIDs map[string]*record.User

	timers gometrics.Registry
	err    error
}

// New creates a processor that resolves identities against the users stored
// in storage and the tables of d.
func New(storage *runtime.Storage, d *defaults.Defaults) (*Processor, error) {
	p := &Processor{
		storage:        storage,
		defaults:       d,
		domains:        make(domainIndex),
		independent:    record.CompanyIndependent,
		companyAliases: make(map[string]string),
		modules:        newModuleIndex(d.Repos),
		users:          make(map[string]*record.User),
		mergedIDs:      make(map[string]*record.User),
		timers:         gometrics.NewRegistry(),
	}
	for _, c := range d.Companies {
		for _, domain := range c.Domains {
			if domain == "" {
				p.independent = c.Name
				continue
			}
			p.domains[domain] = c.Name
		}
		p.companyAliases[strings.ToLower(c.Name)] = c.Name
		for _, alias := range c.Aliases {
			p.companyAliases[strings.ToLower(alias)] = c.Name
		}
	}

	n := 0
	for u, err := range storage.GetAllUsers() {
		if err != nil {
			return nil, fmt.Errorf("load users: %w", err)
		}
		p.indexUser(u)
		n++
	}
	log.Infof("processor ready: %d domains, %d users, %d modules", len(p.domains), n, len(p.modules.names))
	return p, nil
}

// Process yields the records of all events. Events are handled lazily as the
// result is consumed. A store failure stops the sequence, it is reported by Err.
func (p *Processor) Process(events iter.Seq[record.Event]) iter.Seq[*record.Record] {
	return func(yield func(*record.Record) bool) {
		for ev := range events {
			records, err := p.processEvent(ev)
			if err != nil {
				p.err = fmt.Errorf("process %s event: %w", ev.Type, err)
				log.Errorf("%v", p.err)
				return
			}
			eventsProcessed.Inc()
			for _, r := range records {
				if !yield(r) {
					return
				}
			}
		}
	}
}

// Err returns the error that stopped the last Process sequence.
func (p *Processor) Err() error {
	return p.err
}

func (p *Processor) processEvent(ev record.Event) ([]*record.Record, error) {
	switch {
	case ev.Commit != nil:
		return p.processCommit(ev.Commit)
	case ev.Review != nil:
		return p.processReview(ev.Review)
	case ev.Email != nil:
		return p.processEmail(ev.Email)
	case ev.Blueprint != nil:
		return p.processBlueprint(ev.Type, ev.Blueprint)
	case ev.Member != nil:
		return p.processMember(ev.Member)
	case ev.Translation != nil:
		return p.processTranslation(ev.Translation)
	case ev.CI != nil:
		return p.processCI(ev.CI), nil
	default:
		log.Warningf("skipping %s event without payload", ev.Type)
		return nil, nil
	}
}

// resolve returns the user of id together with the user id, name and company
// a record of that user at date carries
func (p *Processor) resolve(id identity, date int64) (u *record.User, userID, name, company string, err error) {
	u, err = p.resolveUser(id)
	if err != nil {
		return nil, "", "", "", err
	}
	if u == nil {
		return nil, record.UserAnonymous, id.name, p.independent, nil
	}
	name = u.UserName
	if name == "" {
		name = id.name
	}
	return u, u.UserID, name, p.companyFor(u, id.email, date), nil
}
