// Package translate ties the pipeline together: parse a source sentence into
// a forest, extract the best derivations, and render them as scored target
// sentences.
package translate

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/Bishoptylaor/mosesdecoder/pkg/chart"
	"github.com/Bishoptylaor/mosesdecoder/pkg/hypergraph"
	"github.com/Bishoptylaor/mosesdecoder/pkg/kbest"
	"github.com/Bishoptylaor/mosesdecoder/pkg/ruletable"
	"github.com/Bishoptylaor/mosesdecoder/pkg/scores"
)

// Options controls translation.
type Options struct {
	// NBest is how many translations Translate returns when the caller does
	// not say. Minimum 1.
	NBest int
	// Distinct deduplicates translations by output string: different
	// derivations of the same target sentence count once.
	Distinct bool
	// MaxRuleSpan is passed through to the chart.
	MaxRuleSpan int
}

// Translation is one ranked decoding result.
type Translation struct {
	Output     string
	Score      float64
	Breakdown  scores.Breakdown
	Derivation *kbest.Derivation
}

// Translator decodes sentences against one loaded grammar. Not safe for
// concurrent use; translate concurrent streams with one translator each.
type Translator struct {
	table *ruletable.Table
	chart *chart.Chart
	opts  Options
}

// New creates a translator over a loaded rule table.
func New(table *ruletable.Table, opts Options) *Translator {
	if opts.NBest <= 0 {
		opts.NBest = 1
	}
	return &Translator{
		table: table,
		chart: chart.NewChart(table, chart.Options{MaxRuleSpan: opts.MaxRuleSpan}),
		opts:  opts,
	}
}

// GrammarStats reports size counters for the loaded rule table.
func (tr *Translator) GrammarStats() ruletable.TableStats {
	return tr.table.Stats()
}

// distinctFactor bounds how far the extraction request may grow while
// hunting for distinct outputs, since a forest can hold exponentially many
// derivations of the same few strings.
const distinctFactor = 20

// Translate decodes one whitespace-tokenized sentence and returns up to k
// results, best first. k <= 0 falls back to the configured n-best size.
// Fewer than k results means the forest was exhausted, not an error.
func (tr *Translator) Translate(source string, k int) ([]Translation, error) {
	return tr.translate(source, k, tr.opts.Distinct)
}

// TranslateDistinct decodes like Translate but overrides the configured
// distinct setting, for callers whose requests carry their own.
func (tr *Translator) TranslateDistinct(source string, k int, distinct bool) ([]Translation, error) {
	return tr.translate(source, k, distinct)
}

func (tr *Translator) translate(source string, k int, distinct bool) ([]Translation, error) {
	if k <= 0 {
		k = tr.opts.NBest
	}
	roots, err := tr.chart.Parse(strings.Fields(source))
	if err != nil {
		return nil, err
	}

	extractor := kbest.NewExtractor()
	var ds []*kbest.Derivation
	if distinct {
		ds = distinctBest(extractor, roots, k)
	} else {
		ds = extractor.Extract(roots, k)
	}

	results := make([]Translation, len(ds))
	for i, d := range ds {
		results[i] = Translation{
			Output:     strings.Join(kbest.GetOutputPhrase(d), " "),
			Score:      d.Score,
			Breakdown:  d.Breakdown,
			Derivation: d,
		}
	}
	stats := tr.chart.Stats()
	log.Debugf("translated %d tokens into %d/%d results (%d cells, %d edges)",
		stats.Tokens, len(results), k, stats.Cells, stats.Edges)
	return results, nil
}

// distinctBest grows the extraction request until k distinct output strings
// are in hand, the forest is exhausted, or the growth cap is reached. The
// extractor memoizes across iterations, so regrowing only pays for the new
// ranks.
func distinctBest(x *kbest.Extractor, roots []*hypergraph.Hypothesis, k int) []*kbest.Derivation {
	request := k
	for {
		ds := x.Extract(roots, request)

		seen := make(map[string]struct{}, len(ds))
		var out []*kbest.Derivation
		for _, d := range ds {
			key := strings.Join(kbest.GetOutputPhrase(d), " ")
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, d)
		}

		exhausted := len(ds) < request
		if len(out) >= k || exhausted || request >= k*distinctFactor {
			if len(out) > k {
				out = out[:k]
			}
			if len(out) < k && !exhausted {
				log.Debugf("distinct n-best capped at %d of %d after %d derivations", len(out), k, len(ds))
			}
			return out
		}
		request *= 2
		if request > k*distinctFactor {
			request = k * distinctFactor
		}
	}
}

// WriteNBest writes results as n-best list lines:
//
//	sentID ||| output words ||| feature: values ||| total
func WriteNBest(w io.Writer, sentID int, results []Translation) error {
	for _, t := range results {
		_, err := fmt.Fprintf(w, "%d ||| %s ||| %s ||| %s\n",
			sentID, t.Output, t.Breakdown, strconv.FormatFloat(t.Score, 'g', 6, 64))
		if err != nil {
			return err
		}
	}
	return nil
}
