// outcome.go - Resolution results

package resolution

import (
	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/bosocmputer/invoice_resolver/internal/processor"
)

// Outcome is the terminal state of one resolution attempt
type Outcome string

const (
	OutcomeExact     Outcome = "exact"
	OutcomeAliasHit  Outcome = "alias_hit"
	OutcomeAutoFuzzy Outcome = "auto_fuzzy"
	OutcomeAmbiguous Outcome = "ambiguous"
	OutcomeNoMatch   Outcome = "no_match"

	// reached through the confirmation protocol
	OutcomeResolved Outcome = "resolved"
	OutcomeRejected Outcome = "rejected"
)

// IsResolved reports whether the outcome carries an entity id
func (o Outcome) IsResolved() bool {
	switch o {
	case OutcomeExact, OutcomeAliasHit, OutcomeAutoFuzzy, OutcomeResolved:
		return true
	}
	return false
}

// NeedsConfirmation reports whether a human has to pick or create the entity
func (o Outcome) NeedsConfirmation() bool {
	return o == OutcomeAmbiguous || o == OutcomeNoMatch
}

// Result is what Resolve returns. Ambiguous and NoMatch are results, not errors.
type Result struct {
	Kind       common.EntityKind `json:"kind"`
	Query      string            `json:"query"`
	Normalized string            `json:"normalized"`
	Outcome    Outcome           `json:"outcome"`
	EntityID   *uint             `json:"entity_id"`
	Score      float64           `json:"score"`
	Candidates []processor.Match `json:"candidates"`
}

// ResolvedID returns the entity id when the outcome is a resolution, nil otherwise
func (r Result) ResolvedID() *uint {
	if !r.Outcome.IsResolved() || r.EntityID == nil {
		return nil
	}
	id := *r.EntityID
	return &id
}

func resolved(r Result, outcome Outcome, id uint, score float64) Result {
	r.Outcome = outcome
	r.EntityID = &id
	r.Score = score
	return r
}
