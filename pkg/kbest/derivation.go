package kbest

import (
	"encoding/binary"
	"fmt"

	"github.com/Bishoptylaor/mosesdecoder/pkg/hypergraph"
	"github.com/Bishoptylaor/mosesdecoder/pkg/scores"
)

// Hyperarc is one incoming hyperedge of a hypothesis, rebound to the
// extractor's memo vertices. Arcs are created once per hyperedge when the
// head vertex is seeded and shared by every derivation through that edge.
type Hyperarc struct {
	Edge *hypergraph.Hyperedge
	Head *Vertex
	Tail []*Vertex
}

// Derivation is one concrete choice: a hyperarc plus, for every tail vertex,
// the rank of the sub-derivation used there. Score and Breakdown are derived
// from that choice at construction time and never change.
type Derivation struct {
	Edge         *Hyperarc
	BackPointers []int
	Score        float64
	Breakdown    scores.Breakdown

	seq uint64 // insertion stamp, breaks score ties deterministically
}

// key returns the identity of the derivation: which hyperedge it instantiates
// and which child ranks it selects. Hyperedges are materialized exactly once
// by the forest builder, so the pointer stands in for head+tail structural
// identity.
func (d *Derivation) key() derivationKey {
	return derivationKey{edge: d.Edge.Edge, ranks: packRanks(d.BackPointers)}
}

type derivationKey struct {
	edge  *hypergraph.Hyperedge
	ranks string
}

func packRanks(backPointers []int) string {
	if len(backPointers) == 0 {
		return ""
	}
	buf := make([]byte, 0, 2*len(backPointers))
	for _, r := range backPointers {
		buf = binary.AppendUvarint(buf, uint64(r))
	}
	return string(buf)
}

// derivationHeap is a max-priority frontier: best score first, earlier
// insertion first among equal scores, so repeated runs pop in an identical
// order.
type derivationHeap []*Derivation

func (h derivationHeap) Len() int { return len(h) }

func (h derivationHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score > h[j].Score
	}
	return h[i].seq < h[j].seq
}

func (h derivationHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *derivationHeap) Push(x any) { *h = append(*h, x.(*Derivation)) }

func (h *derivationHeap) Pop() any {
	old := *h
	n := len(old)
	d := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return d
}

// GetOutputPhrase resolves a derivation into its concrete output tokens by
// walking the rule's target template: terminals are emitted as-is and every
// nonterminal is spliced with the output of the selected sub-derivation.
// The forest is acyclic and each step descends into a tail vertex, so the
// recursion terminates.
func GetOutputPhrase(d *Derivation) []string {
	var out []string
	appendOutput(d, &out)
	return out
}

func appendOutput(d *Derivation, out *[]string) {
	rule := d.Edge.Edge.Rule
	for _, w := range rule.Target {
		if !w.NonTerm {
			*out = append(*out, w.Text)
			continue
		}
		if w.CoIndex >= len(d.Edge.Tail) {
			panic(fmt.Sprintf("kbest: rule %v references slot %d but the edge has %d antecedents",
				rule, w.CoIndex+1, len(d.Edge.Tail)))
		}
		child := d.Edge.Tail[w.CoIndex].kBestList[d.BackPointers[w.CoIndex]]
		appendOutput(child, out)
	}
}
