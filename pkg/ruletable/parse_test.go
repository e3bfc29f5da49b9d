package ruletable

import (
	"math"
	"testing"

	"github.com/Bishoptylaor/mosesdecoder/pkg/scores"
)

func testWeights() scores.Weights {
	return scores.Weights{
		"tm":   {1, 1},
		"wp":   {0},
		"glue": {-0.3},
		"oov":  {-10},
	}
}

func TestParseRule(t *testing.T) {
	table := NewTable(testWeights(), 0)

	testCases := []struct {
		line        string
		arity       int
		targetLen   int
		score       float64
		description string
	}{
		{"le chat ||| the cat ||| -0.5 -1.25", 0, 2, -1.75, "Terminal rule"},
		{"ne [X] pas ||| do not [X,1] ||| -0.75", 1, 3, -0.75, "One nonterminal"},
		{"[X] de [X] ||| [X,2] 's [X,1] ||| -1", 2, 3, -1, "Reordering rule"},
		{"a ||| b ||| -1 ||| 0-0", 0, 1, -1, "Extra fields ignored"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			rule, err := table.ParseRule(tc.line)
			if err != nil {
				t.Fatalf("ParseRule(%q) failed: %v", tc.line, err)
			}
			if rule.Arity() != tc.arity {
				t.Errorf("arity = %d, want %d", rule.Arity(), tc.arity)
			}
			if len(rule.Target) != tc.targetLen {
				t.Errorf("target length = %d, want %d", len(rule.Target), tc.targetLen)
			}
			if math.Abs(rule.Score-tc.score) > 1e-9 {
				t.Errorf("score = %v, want %v", rule.Score, tc.score)
			}
		})
	}
}

func TestParseRuleReordering(t *testing.T) {
	table := NewTable(testWeights(), 0)
	rule, err := table.ParseRule("[X] de [X] ||| [X,2] 's [X,1] ||| -1")
	if err != nil {
		t.Fatal(err)
	}
	// first target nonterminal refers to the second source slot
	if rule.Target[0].CoIndex != 1 || rule.Target[2].CoIndex != 0 {
		t.Errorf("co-indexes = %d, %d; want 1, 0", rule.Target[0].CoIndex, rule.Target[2].CoIndex)
	}
}

func TestParseRuleErrors(t *testing.T) {
	table := NewTable(testWeights(), 0)

	testCases := []struct {
		line        string
		description string
	}{
		{"a ||| b", "Too few fields"},
		{" ||| b ||| -1", "Empty source"},
		{"a ||| b ||| nope", "Bad feature value"},
		{"a ||| b ||| ", "No feature values"},
		{"[X,1] ||| [X,1] ||| -1", "Co-index on source side"},
		{"[X] ||| [X] ||| -1", "Target nonterminal without co-index"},
		{"[X] ||| [X,2] ||| -1", "Co-index out of range"},
		{"[X] ||| [X,0] ||| -1", "Co-index below one"},
		{"[X] [X] ||| [X,1] [X,1] ||| -1", "Slot referenced twice"},
		{"[X] [X] ||| [X,1] ||| -1", "Slot never referenced"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			if _, err := table.ParseRule(tc.line); err == nil {
				t.Errorf("ParseRule(%q) succeeded, want error", tc.line)
			}
		})
	}
}

func TestSplitNonTerminal(t *testing.T) {
	testCases := []struct {
		tok   string
		label string
		isNT  bool
	}{
		{"[X]", "X", true},
		{"[NP]", "NP", true},
		{"[X,1]", "X,1", true},
		{"word", "", false},
		{"[]", "", false},
		{"[x", "", false},
		{"x]", "", false},
	}

	for _, tc := range testCases {
		label, isNT := splitNonTerminal(tc.tok)
		if label != tc.label || isNT != tc.isNT {
			t.Errorf("splitNonTerminal(%q) = (%q, %v), want (%q, %v)",
				tc.tok, label, isNT, tc.label, tc.isNT)
		}
	}
}

func TestRenderRoundTrip(t *testing.T) {
	table := NewTable(testWeights(), 0)
	rule, err := table.ParseRule("ne [X] pas ||| do not [X,1] ||| -0.75")
	if err != nil {
		t.Fatal(err)
	}
	if got := renderSource(rule); got != "ne [X] pas" {
		t.Errorf("renderSource = %q", got)
	}
	if got := renderTarget(rule); got != "do not [X,1]" {
		t.Errorf("renderTarget = %q", got)
	}
}
