// Package finance holds types shared by the finance managers and the quick
// capture parser for free-text transaction entry.
package finance

import "time"

// Record kinds understood by the managers
const (
	KindTransaction = "transaction"
	KindBudget      = "budget"
	KindGoal        = "goal"
	KindCategory    = "category"
	KindOther       = "other"
)

// Provenance marks a record imported from a legacy document
type Provenance struct {
	OriginalID       string    `json:"original_id"`
	Recovered        bool      `json:"recovered"`
	RecoveredAt      time.Time `json:"recovered_at"`
	SourcePath       string    `json:"source_path"`
	SourceCollection string    `json:"source_collection"`

	// TypeInferred is set when the legacy document had no explicit type and the
	// record's type was derived from the sign of its amount.
	TypeInferred bool `json:"type_inferred,omitempty"`
}
