package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet       QueryType = iota // Retrieve an entry by key.
	QueryTGetMulti                   // Retrieve several entries.
	QueryTHas                        // Check if a key exists.
	QueryTKeys                       // List keys by prefix.
	QueryTGetDBInfo                  // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTGetMulti:
		return "GetMulti"
	case QueryTHas:
		return "Has"
	case QueryTKeys:
		return "Keys"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type QueryType // The type of Query to perform.
	Key  string    // The key (Get, Has) or prefix (Keys).
	Keys []string  // The keys for GetMulti.
}

// QueryResult is the result of a QueryTGet operation.
// GetMulti returns map[string][]byte, Has a bool, Keys a []string and
// GetDBInfo a db.DatabaseInfo.
type QueryResult struct {
	Ok    bool
	Value []byte
}
