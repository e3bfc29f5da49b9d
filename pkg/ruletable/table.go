// Package ruletable holds the synchronous grammar: translation rules indexed
// by their source pattern for incremental left-to-right matching during
// parsing, with the per-pattern alternative lists pruned to a table limit.
package ruletable

import (
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"

	"github.com/Bishoptylaor/mosesdecoder/pkg/hypergraph"
	"github.com/Bishoptylaor/mosesdecoder/pkg/scores"
)

// DefaultTableLimit caps how many target alternatives are kept per source
// pattern. Alternatives beyond the limit almost never survive search pruning
// but still cost extraction work.
const DefaultTableLimit = 20

// Labels used by the synthesized rules. Loaded rules always produce TopLabel.
const (
	TopLabel  = "X"
	GlueLabel = "S"
)

// Table is the in-memory rule store. Source patterns are trie keys, so the
// parser can extend a match one symbol at a time and abandon dead prefixes
// early. Safe for concurrent lookups once loading has finished.
type Table struct {
	trie        *patricia.Trie // source key -> *ruleSet
	weights     scores.Weights
	tableLimit  int
	ruleCount   int
	sourceCount int
	maxArity    int
	mu          sync.RWMutex
}

// ruleSet holds the target alternatives for one source pattern, best first.
type ruleSet struct {
	rules []*hypergraph.Rule
}

// TableStats describes the loaded grammar.
type TableStats struct {
	RuleCount   int
	SourceCount int
	MaxArity    int
	TableLimit  int
}

// NewTable creates an empty table. The weights are applied once per rule at
// load time to precompute the rule-local score; tableLimit <= 0 means
// unlimited.
func NewTable(weights scores.Weights, tableLimit int) *Table {
	return &Table{
		trie:       patricia.NewTrie(),
		weights:    weights,
		tableLimit: tableLimit,
	}
}

// AddRule inserts a rule, keeping the pattern's alternatives sorted by score
// and trimming the worst one when the table limit is exceeded. Returns false
// if the rule was trimmed away immediately.
func (t *Table) AddRule(r *hypergraph.Rule) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := r.SourceKey()
	set, _ := t.trie.Get(patricia.Prefix(key)).(*ruleSet)
	if set == nil {
		set = &ruleSet{}
		t.trie.Insert(patricia.Prefix(key), set)
		t.sourceCount++
	}

	// insertion point: after every rule scoring >= r, so equal scores keep
	// their load order
	i := sort.Search(len(set.rules), func(i int) bool {
		return set.rules[i].Score < r.Score
	})
	set.rules = append(set.rules, nil)
	copy(set.rules[i+1:], set.rules[i:])
	set.rules[i] = r
	t.ruleCount++

	if a := r.Arity(); a > t.maxArity {
		t.maxArity = a
	}

	if t.tableLimit > 0 && len(set.rules) > t.tableLimit {
		dropped := set.rules[len(set.rules)-1]
		set.rules[len(set.rules)-1] = nil
		set.rules = set.rules[:len(set.rules)-1]
		t.ruleCount--
		return dropped != r
	}
	return true
}

// Lookup returns the alternatives stored under an exact source key, best
// first, or nil. Callers must not mutate the returned slice.
func (t *Table) Lookup(key string) []*hypergraph.Rule {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if set, ok := t.trie.Get(patricia.Prefix(key)).(*ruleSet); ok {
		return set.rules
	}
	return nil
}

// HasPrefix reports whether any stored source key starts with the given
// prefix. The parser uses it to drop partial matches that cannot complete.
func (t *Table) HasPrefix(prefix string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.trie.MatchSubtree(patricia.Prefix(prefix))
}

// Rules returns every stored rule ordered by source key, then score. Meant
// for conversion tools, not the decoding path.
func (t *Table) Rules() []*hypergraph.Rule {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*hypergraph.Rule
	t.trie.Visit(func(prefix patricia.Prefix, item patricia.Item) error {
		if set, ok := item.(*ruleSet); ok {
			out = append(out, set.rules...)
		}
		return nil
	})
	return out
}

// Stats returns counts describing the loaded grammar.
func (t *Table) Stats() TableStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TableStats{
		RuleCount:   t.ruleCount,
		SourceCount: t.sourceCount,
		MaxArity:    t.maxArity,
		TableLimit:  t.tableLimit,
	}
}

// GlueRules returns the two synthesized rules that chain adjacent spans
// left to right when no loaded rule covers them: one lifting a span into the
// glue label and one concatenating onto an existing glue span. Both charge
// the "glue" feature so the weights can discourage falling back to
// monotone concatenation.
func (t *Table) GlueRules() []*hypergraph.Rule {
	lift := &hypergraph.Rule{
		LHS:      GlueLabel,
		Source:   []hypergraph.Word{hypergraph.NonTerminal(TopLabel, 0)},
		Target:   []hypergraph.Word{hypergraph.NonTerminal(TopLabel, 0)},
		Features: scores.Breakdown{"glue": {1}},
	}
	concat := &hypergraph.Rule{
		LHS: GlueLabel,
		Source: []hypergraph.Word{
			hypergraph.NonTerminal(GlueLabel, 0),
			hypergraph.NonTerminal(TopLabel, 1),
		},
		Target: []hypergraph.Word{
			hypergraph.NonTerminal(GlueLabel, 0),
			hypergraph.NonTerminal(TopLabel, 1),
		},
		Features: scores.Breakdown{"glue": {1}},
	}
	lift.Score = lift.Features.Weighted(t.weights)
	concat.Score = concat.Features.Weighted(t.weights)
	return []*hypergraph.Rule{lift, concat}
}

// OOVRule synthesizes a pass-through rule for a source token the grammar
// does not know, charging the "oov" feature. Synthesized per sentence rather
// than stored, since the token set is open.
func (t *Table) OOVRule(token string) *hypergraph.Rule {
	r := &hypergraph.Rule{
		LHS:      TopLabel,
		Source:   []hypergraph.Word{hypergraph.Terminal(token)},
		Target:   []hypergraph.Word{hypergraph.Terminal(token)},
		Features: scores.Breakdown{"oov": {1}},
	}
	r.Score = r.Features.Weighted(t.weights)
	log.Debugf("synthesized oov rule for %q", token)
	return r
}
