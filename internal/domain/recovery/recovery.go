// Package recovery finds a user's data left in legacy document-store layouts,
// guesses what each collection holds, converts its documents into current
// records and hands them to the live managers.
package recovery

import (
	"errors"
	"sort"
	"time"
)

var (
	ErrUnauthenticated = errors.New("recovery requires an authenticated user")
	ErrInvalidState    = errors.New("invalid recovery state")
	ErrNoBackup        = errors.New("no recovery backup found")
)

// DefaultCandidates are the collection names used by current and past schema versions
var DefaultCandidates = []string{
	"transactions", "transacoes", "financas", "expenses", "income",
	"budgets", "orcamentos", "goals", "metas",
	"categories", "categorias", "users", "usuarios", "contas", "accounts",
}

// Location is a storage convention under which a candidate collection is probed
type Location string

const (
	// LocationUserScoped is users/{uid}/{name}
	LocationUserScoped Location = "user_scoped"
	// LocationRootByUserID is {name} filtered by userId
	LocationRootByUserID Location = "root_by_user_id"
	// LocationRootByEmail is {name} filtered by userEmail
	LocationRootByEmail Location = "root_by_email"
	// LocationRootUnfiltered is {name} without an owner filter. It is listed
	// but its documents are never imported since they may belong to anyone.
	LocationRootUnfiltered Location = "root_unfiltered"
)

// Owner filter fields used by legacy root collections
const (
	FieldUserID    = "userId"
	FieldUserEmail = "userEmail"
)

// Document is a raw record read from a legacy location
type Document struct {
	ID          string         `json:"id"`
	Collection  string         `json:"collection"`
	Path        string         `json:"path"`
	Location    Location       `json:"location"`
	Fields      map[string]any `json:"fields"`
	RecoveredAt time.Time      `json:"recovered_at"`
}

// FieldNames returns the document's field names sorted
func (d Document) FieldNames() []string {
	names := make([]string, 0, len(d.Fields))
	for k := range d.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Match is a location where a probe found documents
type Match struct {
	Collection string   `json:"collection"`
	Path       string   `json:"path"`
	Location   Location `json:"location"`
	Sampled    int      `json:"sampled"`
	Included   bool     `json:"included"`
}

// ProbeFailure records a probe that errored and was treated as empty
type ProbeFailure struct {
	Collection string   `json:"collection"`
	Path       string   `json:"path"`
	Location   Location `json:"location"`
	Error      string   `json:"error"`
}

// ProbeResult aggregates every probe of a scan
type ProbeResult struct {
	Found    bool                  `json:"found"`
	Matches  []Match               `json:"matches"`
	Data     map[string][]Document `json:"data"`
	Failures []ProbeFailure        `json:"failures,omitempty"`
}

// Collections returns the names of collections with importable documents, sorted
func (r ProbeResult) Collections() []string {
	names := make([]string, 0, len(r.Data))
	for name := range r.Data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DocumentCount is the number of importable documents found
func (r ProbeResult) DocumentCount() int {
	n := 0
	for _, docs := range r.Data {
		n += len(docs)
	}
	return n
}

// State is a step of a recovery run
type State string

const (
	StateIdle           State = "idle"
	StateScanning       State = "scanning"
	StateNoData         State = "no-data"
	StateReviewing      State = "reviewing"
	StateImporting      State = "importing"
	StateSuccess        State = "success"
	StatePartialSuccess State = "partial-success"
)

// Terminal reports whether a run in this state is finished
func (s State) Terminal() bool {
	return s == StateNoData || s == StateSuccess || s == StatePartialSuccess
}
