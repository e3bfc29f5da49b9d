// Package hypergraph models the weighted search space a decoder builds over an
// input sentence: hypotheses (nodes) connected by hyperedges, where each
// hyperedge records one grammar rule application over an ordered tuple of
// antecedent hypotheses.
package hypergraph

import (
	"fmt"
	"strings"

	"github.com/Bishoptylaor/mosesdecoder/pkg/scores"
)

// Word is one symbol of a rule: either a terminal surface token or a
// nonterminal placeholder carrying a label. Target-side nonterminals also
// carry the index of the source nonterminal they correspond to.
type Word struct {
	Text    string // surface form for terminals, label for nonterminals
	NonTerm bool
	CoIndex int // tail slot this target nonterminal resolves to (0-based)
}

// Terminal returns a terminal word.
func Terminal(text string) Word {
	return Word{Text: text}
}

// NonTerminal returns a nonterminal word with the given label and slot.
func NonTerminal(label string, coIndex int) Word {
	return Word{Text: label, NonTerm: true, CoIndex: coIndex}
}

// Key is the word's contribution to a source-pattern lookup key. Nonterminals
// collapse to their bracketed label since matching only needs the label, not
// the co-index.
func (w Word) Key() string {
	if w.NonTerm {
		return "[" + w.Text + "]"
	}
	return w.Text
}

func (w Word) String() string {
	if w.NonTerm {
		return fmt.Sprintf("[%s,%d]", w.Text, w.CoIndex+1)
	}
	return w.Text
}

// Rule is one synchronous grammar rule. Source is the pattern matched against
// the input, Target the template the output is built from. Nonterminals in
// Source define the tail slots, in reading order; Target nonterminals refer
// back to those slots through their CoIndex.
type Rule struct {
	LHS      string // label of the hypothesis this rule produces
	Source   []Word
	Target   []Word
	Features scores.Breakdown // rule-local feature values, shared by every application

	// Score is the weighted rule-local contribution, computed once when the
	// table is loaded. Never mutated afterwards.
	Score float64
}

// Arity returns the number of nonterminal slots in the source pattern.
func (r *Rule) Arity() int {
	n := 0
	for _, w := range r.Source {
		if w.NonTerm {
			n++
		}
	}
	return n
}

// SourceKey returns the lookup key for the rule's source pattern.
func (r *Rule) SourceKey() string {
	parts := make([]string, len(r.Source))
	for i, w := range r.Source {
		parts[i] = w.Key()
	}
	return strings.Join(parts, " ")
}

func (r *Rule) String() string {
	src := make([]string, len(r.Source))
	for i, w := range r.Source {
		src[i] = w.String()
	}
	tgt := make([]string, len(r.Target))
	for i, w := range r.Target {
		tgt[i] = w.String()
	}
	return fmt.Sprintf("[%s] %s ||| %s", r.LHS, strings.Join(src, " "), strings.Join(tgt, " "))
}

// Span is a half-open token range [Start, End) over the input sentence.
type Span struct {
	Start int
	End   int
}

// Width returns the number of tokens the span covers.
func (s Span) Width() int { return s.End - s.Start }

func (s Span) String() string { return fmt.Sprintf("[%d,%d)", s.Start, s.End) }

// Hypothesis is a node of the search hypergraph: everything the decoder found
// for one (span, label) pair. Its incoming hyperedges are the individual rule
// applications; the first edge is always the best-scoring one. Hypotheses are
// identified by pointer; Label, Span and ID never change after creation.
type Hypothesis struct {
	id    int
	label string
	span  Span
	root  bool

	edges         []*Hyperedge
	bestScore     float64
	bestBreakdown scores.Breakdown
}

// NewHypothesis creates an empty hypothesis node. The caller owns id
// assignment; ids only need to be unique within one forest.
func NewHypothesis(id int, label string, span Span) *Hypothesis {
	return &Hypothesis{id: id, label: label, span: span}
}

// ID returns the forest-local identifier.
func (h *Hypothesis) ID() int { return h.id }

// Label returns the nonterminal label this node was built for.
func (h *Hypothesis) Label() string { return h.label }

// Span returns the input range this node covers.
func (h *Hypothesis) Span() Span { return h.span }

// Edges returns the incoming hyperedges, best first. Callers must not mutate
// the returned slice.
func (h *Hypothesis) Edges() []*Hyperedge { return h.edges }

// BestScore returns the total weighted score of the node's single best
// derivation. Zero until the first edge is added.
func (h *Hypothesis) BestScore() float64 { return h.bestScore }

// BestBreakdown returns the feature breakdown of the best derivation. The
// returned map is shared; callers must clone before mutating.
func (h *Hypothesis) BestBreakdown() scores.Breakdown { return h.bestBreakdown }

// IsRoot reports whether the node covers the whole input and so may appear in
// the ranked root sequence handed to extraction.
func (h *Hypothesis) IsRoot() bool { return h.root }

// MarkRoot flags the node as a root. Set by the search once spans are final.
func (h *Hypothesis) MarkRoot() { h.root = true }

func (h *Hypothesis) String() string {
	return fmt.Sprintf("%s %s #%d", h.label, h.span, h.id)
}

// Hyperedge is one rule application: the rule, the head it produces and the
// ordered antecedent hypotheses filling the rule's nonterminal slots. Each
// application is materialized exactly once, so pointer identity doubles as
// structural identity for deduplication downstream.
type Hyperedge struct {
	Head *Hypothesis
	Rule *Rule
	Tail []*Hypothesis
}

// LocalScore returns the weighted contribution of the rule itself, excluding
// the antecedent sub-derivations.
func (e *Hyperedge) LocalScore() float64 { return e.Rule.Score }

// Breakdown returns the rule-local feature values. Shared storage; clone
// before mutating.
func (e *Hyperedge) Breakdown() scores.Breakdown { return e.Rule.Features }

// BestScore returns the score of the best derivation through this edge given
// the antecedents' own best scores.
func (e *Hyperedge) BestScore() float64 {
	total := e.Rule.Score
	for _, t := range e.Tail {
		total += t.bestScore
	}
	return total
}

// AddEdge attaches a new incoming rule application to h, keeping the best
// edge at index 0 and the node's best score and breakdown current. All tail
// hypotheses must already be complete: their best scores are read here and
// must not change afterwards.
func (h *Hypothesis) AddEdge(e *Hyperedge) {
	if e.Head == nil {
		e.Head = h
	}
	total := e.BestScore()
	if len(h.edges) == 0 || total > h.bestScore {
		h.bestScore = total
		breakdown := e.Rule.Features.Clone()
		for _, t := range e.Tail {
			if t.bestBreakdown != nil {
				breakdown.Merge(t.bestBreakdown)
			}
		}
		h.bestBreakdown = breakdown
		h.edges = append(h.edges, nil)
		copy(h.edges[1:], h.edges)
		h.edges[0] = e
		return
	}
	h.edges = append(h.edges, e)
}
