package recovery

import (
	"strings"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/finance"
)

// Field groups recognised by the rule classifier
const (
	GroupAmount = "amount"
	GroupDate   = "date"
	GroupBudget = "budget"
	GroupGoal   = "goal"
	GroupName   = "name"
)

var fieldGroups = []struct {
	group string
	names []string
}{
	{GroupAmount, []string{"amount", "valor", "value", "price", "preco"}},
	{GroupDate, []string{"date", "data", "created", "timestamp", "createdat"}},
	{GroupBudget, []string{"budget", "orcamento", "limit", "limite"}},
	{GroupGoal, []string{"goal", "meta", "target", "objetivo"}},
	{GroupName, []string{"category", "categoria", "name", "nome"}},
}

// Classification is the guessed role of a document or collection
type Classification struct {
	Kind string `json:"kind"`
	// Confidence is in [0,1]; for a collection it includes the share of
	// sampled documents agreeing with the first one.
	Confidence float64 `json:"confidence"`
	// Ambiguous is set when several rules matched or sampled documents disagree
	Ambiguous bool `json:"ambiguous"`
	// Groups lists the recognised field groups that were present
	Groups []string `json:"groups"`
	// Candidates lists every kind whose rule matched, in decision order
	Candidates []string `json:"candidates,omitempty"`
}

// Importable reports whether records of this kind are handed to a manager
func (c Classification) Importable() bool {
	return c.Kind != "" && c.Kind != finance.KindOther
}

// Classifier guesses a record kind from field names
type Classifier interface {
	Classify(fields []string) Classification
}

// RuleClassifier applies fixed keyword groups, first matching rule wins:
// amount and date make a transaction, then budget, then goal, then a name
// without an amount makes a category. Field names are compared case-insensitively.
type RuleClassifier struct{}

// Classify implements Classifier
func (RuleClassifier) Classify(fields []string) Classification {
	present := make(map[string]bool, len(fieldGroups))
	for _, f := range fields {
		lower := strings.ToLower(f)
		for _, g := range fieldGroups {
			for _, n := range g.names {
				if lower == n {
					present[g.group] = true
				}
			}
		}
	}

	groups := make([]string, 0, len(present))
	for _, g := range fieldGroups {
		if present[g.group] {
			groups = append(groups, g.group)
		}
	}

	var candidates []string
	if present[GroupAmount] && present[GroupDate] {
		candidates = append(candidates, finance.KindTransaction)
	}
	if present[GroupBudget] {
		candidates = append(candidates, finance.KindBudget)
	}
	if present[GroupGoal] {
		candidates = append(candidates, finance.KindGoal)
	}
	if present[GroupName] && !present[GroupAmount] {
		candidates = append(candidates, finance.KindCategory)
	}

	if len(candidates) == 0 {
		c := Classification{Kind: finance.KindOther, Confidence: 1, Groups: groups}
		// Some recognised fields but no complete rule
		if len(groups) > 0 {
			c.Confidence = 0.5
		}
		return c
	}

	return Classification{
		Kind:       candidates[0],
		Confidence: 1 / float64(len(candidates)),
		Ambiguous:  len(candidates) > 1,
		Groups:     groups,
		Candidates: candidates,
	}
}

// ClassifyCollection labels a whole collection from its first document, and
// lowers confidence by the share of the remaining documents that disagree.
func ClassifyCollection(c Classifier, docs []Document) Classification {
	if len(docs) == 0 {
		return Classification{Kind: finance.KindOther, Groups: []string{}}
	}

	first := c.Classify(docs[0].FieldNames())
	agree := 0
	for _, d := range docs {
		if c.Classify(d.FieldNames()).Kind == first.Kind {
			agree++
		}
	}
	agreement := float64(agree) / float64(len(docs))

	first.Confidence *= agreement
	first.Ambiguous = first.Ambiguous || agreement < 1
	return first
}
