package ruletable

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/Bishoptylaor/mosesdecoder/pkg/hypergraph"
	"github.com/Bishoptylaor/mosesdecoder/pkg/scores"
)

const fieldSep = "|||"

// ParseRule parses one grammar line of the form
//
//	source ||| target ||| feature values
//
// Source nonterminals are written [Label] and fill tail slots in reading
// order; target nonterminals are written [Label,N] where N is the 1-based
// source slot they resolve to. Feature values are whitespace-separated
// log-domain floats. Extra fields after the third are ignored.
func (t *Table) ParseRule(line string) (*hypergraph.Rule, error) {
	fields := strings.Split(line, fieldSep)
	if len(fields) < 3 {
		return nil, fmt.Errorf("rule needs 3 fields separated by %q, got %d", fieldSep, len(fields))
	}

	source, err := parseSource(strings.TrimSpace(fields[0]))
	if err != nil {
		return nil, err
	}
	arity := 0
	for _, w := range source {
		if w.NonTerm {
			arity++
		}
	}

	target, err := parseTarget(strings.TrimSpace(fields[1]), arity)
	if err != nil {
		return nil, err
	}

	var feats []float64
	for _, f := range strings.Fields(fields[2]) {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("bad feature value %q: %w", f, err)
		}
		feats = append(feats, v)
	}
	if len(feats) == 0 {
		return nil, fmt.Errorf("rule has no feature values")
	}

	return t.buildRule(source, target, feats), nil
}

func parseSource(field string) ([]hypergraph.Word, error) {
	tokens := strings.Fields(field)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty source pattern")
	}

	words := make([]hypergraph.Word, 0, len(tokens))
	slot := 0
	for _, tok := range tokens {
		label, isNT := splitNonTerminal(tok)
		if !isNT {
			words = append(words, hypergraph.Terminal(tok))
			continue
		}
		if strings.Contains(label, ",") {
			return nil, fmt.Errorf("source nonterminal %q must not carry a co-index", tok)
		}
		words = append(words, hypergraph.NonTerminal(label, slot))
		slot++
	}
	return words, nil
}

func parseTarget(field string, arity int) ([]hypergraph.Word, error) {
	tokens := strings.Fields(field)
	words := make([]hypergraph.Word, 0, len(tokens))
	used := make([]bool, arity)
	for _, tok := range tokens {
		label, isNT := splitNonTerminal(tok)
		if !isNT {
			words = append(words, hypergraph.Terminal(tok))
			continue
		}
		name, idx, ok := strings.Cut(label, ",")
		if !ok {
			return nil, fmt.Errorf("target nonterminal %q needs a co-index", tok)
		}
		n, err := strconv.Atoi(idx)
		if err != nil || n < 1 || n > arity {
			return nil, fmt.Errorf("target nonterminal %q references slot %q of %d", tok, idx, arity)
		}
		if used[n-1] {
			return nil, fmt.Errorf("target references slot %d twice", n)
		}
		used[n-1] = true
		words = append(words, hypergraph.NonTerminal(name, n-1))
	}
	for i, u := range used {
		if !u {
			return nil, fmt.Errorf("source slot %d never appears in the target", i+1)
		}
	}
	return words, nil
}

// splitNonTerminal returns the bracket contents when a token is a
// nonterminal. Bare brackets and unbalanced tokens read as terminals.
func splitNonTerminal(tok string) (string, bool) {
	if len(tok) < 3 || tok[0] != '[' || tok[len(tok)-1] != ']' {
		return "", false
	}
	return tok[1 : len(tok)-1], true
}

// buildRule assembles a rule from parsed symbols: the "tm" feature carries
// the grammar's own values, "wp" the target word count penalty, and the
// weighted rule-local score is fixed here once.
func (t *Table) buildRule(source, target []hypergraph.Word, feats []float64) *hypergraph.Rule {
	terminals := 0
	for _, w := range target {
		if !w.NonTerm {
			terminals++
		}
	}
	r := &hypergraph.Rule{
		LHS:    TopLabel,
		Source: source,
		Target: target,
		Features: scores.Breakdown{
			"tm": feats,
			"wp": {float64(-terminals)},
		},
	}
	r.Score = r.Features.Weighted(t.weights)
	return r
}

// renderSource formats a rule's source pattern in the grammar line syntax.
// Round-trips through parseSource.
func renderSource(r *hypergraph.Rule) string {
	parts := make([]string, len(r.Source))
	for i, w := range r.Source {
		parts[i] = w.Key()
	}
	return strings.Join(parts, " ")
}

// renderTarget formats a rule's target template in the grammar line syntax.
// Round-trips through parseTarget.
func renderTarget(r *hypergraph.Rule) string {
	parts := make([]string, len(r.Target))
	for i, w := range r.Target {
		parts[i] = w.String()
	}
	return strings.Join(parts, " ")
}

// LoadText reads a plain text grammar, one rule per line. Blank lines and
// lines starting with # are skipped; malformed lines are logged and skipped
// so one bad rule does not take down the rest of the grammar. Returns how
// many rules survived the table limit.
func (t *Table) LoadText(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open grammar %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	added := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule, err := t.ParseRule(line)
		if err != nil {
			log.Warnf("Skipping rule at %s:%d: %v", path, lineNo, err)
			continue
		}
		if t.AddRule(rule) {
			added++
		}
	}
	if err := scanner.Err(); err != nil {
		return added, fmt.Errorf("failed to read grammar %s: %w", path, err)
	}

	log.Debugf("Loaded %d rules from %s", added, path)
	return added, nil
}
