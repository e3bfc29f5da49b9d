// Package chart builds the decoding hypergraph for one input sentence: a
// bottom-up parse over spans where every grammar rule application becomes a
// hyperedge and hypotheses covering the same span with the same label are
// recombined into one node. The resulting forest is what k-best extraction
// ranks.
package chart

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/Bishoptylaor/mosesdecoder/pkg/hypergraph"
	"github.com/Bishoptylaor/mosesdecoder/pkg/ruletable"
)

// Options controls parsing.
type Options struct {
	// MaxRuleSpan caps the span width loaded rules may cover; wider spans
	// are reachable only through glue concatenation. 0 means unlimited.
	MaxRuleSpan int
}

// Stats describes the last parsed forest.
type Stats struct {
	Tokens int
	Cells  int
	Edges  int
	OOVs   int
}

// Chart parses sentences against one rule table. A chart is reusable
// sequentially; Parse resets all per-sentence state. Not safe for concurrent
// use, decode concurrent sentences with one chart each.
type Chart struct {
	table       *ruletable.Table
	maxRuleSpan int
	glueLift    *hypergraph.Rule
	glueConcat  *hypergraph.Rule

	tokens []string
	cells  map[cellKey]*hypergraph.Hypothesis
	bySpan map[spanKey][]*hypergraph.Hypothesis
	nextID int
	edges  int
	oovs   int
}

type cellKey struct {
	start, end int
	label      string
}

type spanKey struct {
	start, end int
}

// activeItem is a partial rule match: the source symbols consumed so far as
// a trie key, the next input position, and the hypotheses bound to the
// consumed nonterminals in reading order.
type activeItem struct {
	prefix string
	pos    int
	tails  []*hypergraph.Hypothesis
}

// NewChart creates a chart over a loaded table.
func NewChart(table *ruletable.Table, opts Options) *Chart {
	glue := table.GlueRules()
	return &Chart{
		table:       table,
		maxRuleSpan: opts.MaxRuleSpan,
		glueLift:    glue[0],
		glueConcat:  glue[1],
	}
}

// Parse builds the forest for one tokenized sentence and returns its root
// hypotheses, best first. Unknown tokens become pass-through nodes, so any
// non-empty sentence parses; the roots cover the entire input.
func (c *Chart) Parse(tokens []string) ([]*hypergraph.Hypothesis, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty input sentence")
	}

	c.tokens = tokens
	c.cells = make(map[cellKey]*hypergraph.Hypothesis)
	c.bySpan = make(map[spanKey][]*hypergraph.Hypothesis)
	c.nextID = 0
	c.edges = 0
	c.oovs = 0

	n := len(tokens)
	for width := 1; width <= n; width++ {
		for start := 0; start+width <= n; start++ {
			end := start + width
			if c.maxRuleSpan <= 0 || width <= c.maxRuleSpan {
				c.matchRules(start, end)
			}
			if width == 1 {
				c.coverUnknown(start)
			}
			c.applyGlue(start, end)
		}
	}

	roots := c.collectRoots()
	if len(roots) == 0 {
		return nil, fmt.Errorf("no parse covers the %d input tokens", n)
	}
	log.Debugf("parsed %d tokens: %d cells, %d edges, %d oov", n, len(c.cells), c.edges, c.oovs)
	return roots, nil
}

// matchRules finds every loaded rule application covering [start, end) by
// extending partial matches one source symbol at a time. A symbol is either
// the next input token or a completed narrower hypothesis; extensions whose
// key prefixes nothing in the table are abandoned immediately.
func (c *Chart) matchRules(start, end int) {
	items := []activeItem{{pos: start}}
	for i := 0; i < len(items); i++ {
		item := items[i]

		if item.pos == end {
			c.completeItem(item, start, end)
			continue
		}

		// consume the input token at pos as a terminal symbol
		if key := extendKey(item.prefix, c.tokens[item.pos]); c.table.HasPrefix(key) {
			items = append(items, activeItem{prefix: key, pos: item.pos + 1, tails: item.tails})
		}

		// or consume a completed hypothesis as a nonterminal symbol; the
		// sub-span must be strictly narrower than the full span so every
		// bound tail is final before its head gets edges
		for mid := item.pos + 1; mid <= end; mid++ {
			if item.pos == start && mid == end {
				continue
			}
			for _, h := range c.bySpan[spanKey{item.pos, mid}] {
				key := extendKey(item.prefix, "["+h.Label()+"]")
				if !c.table.HasPrefix(key) {
					continue
				}
				tails := make([]*hypergraph.Hypothesis, len(item.tails)+1)
				copy(tails, item.tails)
				tails[len(item.tails)] = h
				items = append(items, activeItem{prefix: key, pos: mid, tails: tails})
			}
		}
	}
}

// completeItem attaches one hyperedge per target alternative of the matched
// pattern. Each (rule, tails) pair is reached along exactly one extension
// path, so every hyperedge is materialized once; extraction relies on that
// for deduplication by identity.
func (c *Chart) completeItem(item activeItem, start, end int) {
	rules := c.table.Lookup(item.prefix)
	if len(rules) == 0 {
		return
	}
	span := hypergraph.Span{Start: start, End: end}
	for _, r := range rules {
		head := c.cell(span, r.LHS)
		head.AddEdge(&hypergraph.Hyperedge{Rule: r, Tail: item.tails})
		c.edges++
	}
}

// coverUnknown gives a token no rule covers a synthesized pass-through node,
// so unknown words degrade the translation instead of failing it.
func (c *Chart) coverUnknown(start int) {
	span := hypergraph.Span{Start: start, End: start + 1}
	if c.cells[cellKey{span.Start, span.End, ruletable.TopLabel}] != nil {
		return
	}
	rule := c.table.OOVRule(c.tokens[start])
	c.cell(span, ruletable.TopLabel).AddEdge(&hypergraph.Hyperedge{Rule: rule})
	c.edges++
	c.oovs++
}

// applyGlue builds the glue-label node for a span: lifting the span's own
// top-label node and concatenating a glue prefix with a top-label suffix.
// Left-branching only, so one glue derivation exists per segmentation.
func (c *Chart) applyGlue(start, end int) {
	span := hypergraph.Span{Start: start, End: end}

	if x := c.cells[cellKey{start, end, ruletable.TopLabel}]; x != nil {
		head := c.cell(span, ruletable.GlueLabel)
		head.AddEdge(&hypergraph.Hyperedge{
			Rule: c.glueLift,
			Tail: []*hypergraph.Hypothesis{x},
		})
		c.edges++
	}

	for mid := start + 1; mid < end; mid++ {
		left := c.cells[cellKey{start, mid, ruletable.GlueLabel}]
		right := c.cells[cellKey{mid, end, ruletable.TopLabel}]
		if left == nil || right == nil {
			continue
		}
		head := c.cell(span, ruletable.GlueLabel)
		head.AddEdge(&hypergraph.Hyperedge{
			Rule: c.glueConcat,
			Tail: []*hypergraph.Hypothesis{left, right},
		})
		c.edges++
	}
}

// cell returns the hypothesis node for (span, label), creating it on first
// use. One node per key is what recombines equivalent derivations and keeps
// the forest polynomial.
func (c *Chart) cell(span hypergraph.Span, label string) *hypergraph.Hypothesis {
	key := cellKey{span.Start, span.End, label}
	if h, ok := c.cells[key]; ok {
		return h
	}
	h := hypergraph.NewHypothesis(c.nextID, label, span)
	c.nextID++
	c.cells[key] = h
	c.bySpan[spanKey{span.Start, span.End}] = append(c.bySpan[spanKey{span.Start, span.End}], h)
	return h
}

// collectRoots returns the full-span nodes, glue label preferred since it
// always covers the whole input when glue and unknown-word coverage are on.
// Sorted by best score so extraction can merge them directly.
func (c *Chart) collectRoots() []*hypergraph.Hypothesis {
	n := len(c.tokens)
	var roots []*hypergraph.Hypothesis
	if s := c.cells[cellKey{0, n, ruletable.GlueLabel}]; s != nil {
		roots = append(roots, s)
	} else {
		roots = append(roots, c.bySpan[spanKey{0, n}]...)
	}
	sort.SliceStable(roots, func(i, j int) bool {
		return roots[i].BestScore() > roots[j].BestScore()
	})
	for _, r := range roots {
		r.MarkRoot()
	}
	return roots
}

// Stats reports on the most recently parsed sentence.
func (c *Chart) Stats() Stats {
	return Stats{
		Tokens: len(c.tokens),
		Cells:  len(c.cells),
		Edges:  c.edges,
		OOVs:   c.oovs,
	}
}

func extendKey(prefix, sym string) string {
	if prefix == "" {
		return sym
	}
	return prefix + " " + sym
}
