// Package kbest extracts the globally best k derivations from a decoding
// hypergraph without enumerating the full derivation space, using the lazy
// scheme of Huang & Chiang's "Better k-best parsing" (IWPT 2005), algorithm 3:
// every visited hypothesis gets a memo vertex holding its ranked derivations
// so far, a priority frontier of candidates, and a dedup set; ranks are grown
// one at a time, on demand, by perturbing one back-pointer of an accepted
// derivation.
package kbest

import (
	"container/heap"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/Bishoptylaor/mosesdecoder/pkg/hypergraph"
)

// Vertex is the per-hypothesis memo node. kBestList grows append-only, so a
// rank handed out once stays valid for the lifetime of the extractor.
type Vertex struct {
	hypothesis *hypergraph.Hypothesis
	kBestList  []*Derivation
	candidates derivationHeap
	seen       map[derivationKey]struct{}
	visited    bool
	seeding    bool
}

// Hypothesis returns the forest node this vertex memoizes.
func (v *Vertex) Hypothesis() *hypergraph.Hypothesis { return v.hypothesis }

// Derivations returns the ranked derivations discovered so far, best first.
// Callers must not mutate the returned slice.
func (v *Vertex) Derivations() []*Derivation { return v.kBestList }

// Extractor owns the memo state for extraction over one forest. It is not
// safe for concurrent use; decoding independent sentences concurrently means
// one extractor each. Keeping an extractor alive across Extract calls on the
// same forest reuses every rank already discovered.
type Extractor struct {
	vertexMap map[*hypergraph.Hypothesis]*Vertex
	nextSeq   uint64
}

// NewExtractor returns an empty extractor for one forest.
func NewExtractor() *Extractor {
	return &Extractor{vertexMap: make(map[*hypergraph.Hypothesis]*Vertex)}
}

// FindOrCreateVertex returns the memo vertex for a hypothesis, creating an
// unseeded one on first sight. At most one vertex ever exists per hypothesis,
// which is what keeps the memo polynomial over an exponential space.
func (x *Extractor) FindOrCreateVertex(h *hypergraph.Hypothesis) *Vertex {
	if v, ok := x.vertexMap[h]; ok {
		return v
	}
	v := &Vertex{
		hypothesis: h,
		seen:       make(map[derivationKey]struct{}),
	}
	x.vertexMap[h] = v
	return v
}

// Extract returns the best k derivations across all roots combined, in
// strictly non-increasing score order. Roots must arrive pre-ranked by their
// own best scores; each root's deeper ranks are pulled lazily as the merge
// demands them. Fewer than k results simply means the forest holds fewer
// derivations.
func (x *Extractor) Extract(roots []*hypergraph.Hypothesis, k int) []*Derivation {
	if k <= 0 || len(roots) == 0 {
		return nil
	}

	frontier := make(rootHeap, 0, len(roots))
	for i, root := range roots {
		v := x.FindOrCreateVertex(root)
		x.LazyKthBest(v, 0)
		if len(v.kBestList) == 0 {
			log.Debugf("root %v has no derivations", root)
			continue
		}
		frontier = append(frontier, rootItem{
			root:  i,
			rank:  0,
			score: v.kBestList[0].Score,
			seq:   uint64(i),
		})
	}
	heap.Init(&frontier)

	var out []*Derivation
	for len(out) < k && frontier.Len() > 0 {
		item := heap.Pop(&frontier).(rootItem)
		v := x.vertexMap[roots[item.root]]
		out = append(out, v.kBestList[item.rank])

		next := item.rank + 1
		x.LazyKthBest(v, next)
		if next < len(v.kBestList) {
			heap.Push(&frontier, rootItem{
				root:  item.root,
				rank:  next,
				score: v.kBestList[next].Score,
				seq:   item.seq,
			})
		}
	}
	log.Debugf("extracted %d of %d requested derivations from %d roots", len(out), k, len(roots))
	return out
}

// LazyKthBest grows v's ranked list until rank k exists or the vertex runs
// out of derivations. Ranks are 0-based, so the list ends up holding at least
// k+1 entries when the vertex admits that many.
func (x *Extractor) LazyKthBest(v *Vertex, k int) {
	if !v.visited {
		if v.seeding {
			panic(fmt.Sprintf("kbest: hypergraph cycle through %v", v.hypothesis))
		}
		x.getCandidates(v)
		v.visited = true
	}
	for len(v.kBestList) <= k && v.candidates.Len() > 0 {
		d := heap.Pop(&v.candidates).(*Derivation)
		v.kBestList = append(v.kBestList, d)
		x.lazyNext(v, d)
	}
}

// getCandidates seeds a vertex's frontier on first visit: one base derivation
// per incoming hyperedge, built over each tail's rank-0 derivation, which is
// materialized recursively first. The seeding flag catches cycles: the forest
// is a DAG over strictly narrowing spans, so re-entering a vertex mid-seed
// means the input is malformed and ranking it silently would corrupt output.
func (x *Extractor) getCandidates(v *Vertex) {
	v.seeding = true
	for _, e := range v.hypothesis.Edges() {
		arc := &Hyperarc{
			Edge: e,
			Head: v,
			Tail: make([]*Vertex, len(e.Tail)),
		}
		for i, t := range e.Tail {
			tv := x.FindOrCreateVertex(t)
			x.LazyKthBest(tv, 0)
			arc.Tail[i] = tv
		}
		x.pushCandidate(v, x.newBase(arc))
	}
	v.seeding = false
}

// lazyNext expands the successors of an accepted derivation: for each
// back-pointer position, the derivation using the tail's next-ranked
// sub-derivation instead. The needed child rank is grown first; if the tail
// cannot supply it the successor does not exist.
func (x *Extractor) lazyNext(v *Vertex, d *Derivation) {
	for i := range d.BackPointers {
		tv := d.Edge.Tail[i]
		rank := d.BackPointers[i] + 1
		x.LazyKthBest(tv, rank)
		if rank >= len(tv.kBestList) {
			continue
		}
		x.pushCandidate(v, x.newSuccessor(d, i))
	}
}

// pushCandidate stamps and enqueues a derivation unless a structurally
// identical one was enqueued before.
func (x *Extractor) pushCandidate(v *Vertex, d *Derivation) {
	key := d.key()
	if _, dup := v.seen[key]; dup {
		return
	}
	v.seen[key] = struct{}{}
	d.seq = x.nextSeq
	x.nextSeq++
	heap.Push(&v.candidates, d)
}

// newBase builds the best derivation through an arc: every back-pointer at
// rank 0.
func (x *Extractor) newBase(arc *Hyperarc) *Derivation {
	d := &Derivation{
		Edge:         arc,
		BackPointers: make([]int, len(arc.Tail)),
	}
	x.computeScore(d)
	return d
}

// newSuccessor builds the derivation identical to d except back-pointer i is
// bumped one rank. The caller has already ensured that rank exists.
func (x *Extractor) newSuccessor(d *Derivation, i int) *Derivation {
	backPointers := make([]int, len(d.BackPointers))
	copy(backPointers, d.BackPointers)
	backPointers[i]++
	nd := &Derivation{
		Edge:         d.Edge,
		BackPointers: backPointers,
	}
	x.computeScore(nd)
	return nd
}

// computeScore fills in the derived score fields: the edge's own weighted
// contribution plus the totals of the selected sub-derivations, and the same
// sum over named feature breakdowns. Summing fresh on every construction
// keeps a derivation's cached score exactly equal to its definition.
func (x *Extractor) computeScore(d *Derivation) {
	total := d.Edge.Edge.LocalScore()
	breakdown := d.Edge.Edge.Breakdown().Clone()
	for i, tv := range d.Edge.Tail {
		rank := d.BackPointers[i]
		if rank >= len(tv.kBestList) {
			panic(fmt.Sprintf("kbest: rank %d of %v not materialized", rank, tv.hypothesis))
		}
		child := tv.kBestList[rank]
		total += child.Score
		breakdown.Merge(child.Breakdown)
	}
	d.Score = total
	d.Breakdown = breakdown
}

// rootHeap merges the per-root ranked lists into one global order: best score
// first, ties to the earlier-seeded root.
type rootItem struct {
	root  int
	rank  int
	score float64
	seq   uint64
}

type rootHeap []rootItem

func (h rootHeap) Len() int { return len(h) }

func (h rootHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score > h[j].score
	}
	return h[i].seq < h[j].seq
}

func (h rootHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *rootHeap) Push(x any) { *h = append(*h, x.(rootItem)) }

func (h *rootHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
