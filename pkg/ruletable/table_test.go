package ruletable

import (
	"fmt"
	"testing"
)

func TestAddRuleKeepsBestFirst(t *testing.T) {
	table := NewTable(testWeights(), 0)
	for _, feat := range []string{"-2", "-0.5", "-1"} {
		rule, err := table.ParseRule(fmt.Sprintf("le chat ||| cat%s ||| %s", feat, feat))
		if err != nil {
			t.Fatal(err)
		}
		table.AddRule(rule)
	}

	got := table.Lookup("le chat")
	if len(got) != 3 {
		t.Fatalf("got %d alternatives, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Score < got[i].Score {
			t.Errorf("alternative %d scores %v after %v", i, got[i].Score, got[i-1].Score)
		}
	}
	if got[0].Score != -0.5 || got[2].Score != -2 {
		t.Errorf("scores = %v, %v, %v", got[0].Score, got[1].Score, got[2].Score)
	}
}

func TestTableLimitDropsWorst(t *testing.T) {
	table := NewTable(testWeights(), 2)
	scores := []string{"-1", "-3", "-2"}
	for i, s := range scores {
		rule, err := table.ParseRule(fmt.Sprintf("der ||| the%d ||| %s", i, s))
		if err != nil {
			t.Fatal(err)
		}
		kept := table.AddRule(rule)
		// the third insert ranks between the others, so it survives and
		// evicts the -3 alternative
		if !kept && s != "-3" {
			t.Errorf("rule with score %s was dropped", s)
		}
	}

	got := table.Lookup("der")
	if len(got) != 2 {
		t.Fatalf("got %d alternatives, want 2", len(got))
	}
	if got[0].Score != -1 || got[1].Score != -2 {
		t.Errorf("kept scores %v, %v; want -1, -2", got[0].Score, got[1].Score)
	}
	if stats := table.Stats(); stats.RuleCount != 2 {
		t.Errorf("RuleCount = %d, want 2", stats.RuleCount)
	}
}

func TestTableLimitRejectsWorseRule(t *testing.T) {
	table := NewTable(testWeights(), 1)
	good, _ := table.ParseRule("a ||| x ||| -1")
	bad, _ := table.ParseRule("a ||| y ||| -5")
	if !table.AddRule(good) {
		t.Error("first rule was dropped")
	}
	if table.AddRule(bad) {
		t.Error("worse rule survived a full alternative list")
	}
	if got := table.Lookup("a"); len(got) != 1 || got[0].Score != -1 {
		t.Errorf("lookup = %v", got)
	}
}

func TestEqualScoresKeepLoadOrder(t *testing.T) {
	table := NewTable(testWeights(), 0)
	first, _ := table.ParseRule("haus ||| house ||| -1")
	second, _ := table.ParseRule("haus ||| home ||| -1")
	table.AddRule(first)
	table.AddRule(second)

	got := table.Lookup("haus")
	if len(got) != 2 {
		t.Fatalf("got %d alternatives", len(got))
	}
	if got[0] != first || got[1] != second {
		t.Error("equal-scoring alternatives reordered")
	}
}

func TestLookupMissing(t *testing.T) {
	table := NewTable(testWeights(), 0)
	if got := table.Lookup("nicht da"); got != nil {
		t.Errorf("missing key returned %v", got)
	}
}

func TestHasPrefix(t *testing.T) {
	table := NewTable(testWeights(), 0)
	rule, err := table.ParseRule("ne [X] pas ||| do not [X,1] ||| -0.75")
	if err != nil {
		t.Fatal(err)
	}
	table.AddRule(rule)

	testCases := []struct {
		prefix string
		want   bool
	}{
		{"n", true},
		{"ne", true},
		{"ne [X]", true},
		{"ne [X] pas", true},
		{"nz", false},
		{"pas", false},
	}
	for _, tc := range testCases {
		if got := table.HasPrefix(tc.prefix); got != tc.want {
			t.Errorf("HasPrefix(%q) = %v, want %v", tc.prefix, got, tc.want)
		}
	}
}

func TestStatsTracksArity(t *testing.T) {
	table := NewTable(testWeights(), 0)
	lines := []string{
		"le chat ||| the cat ||| -0.5",
		"ne [X] pas ||| do not [X,1] ||| -0.75",
		"[X] de [X] ||| [X,2] 's [X,1] ||| -1",
	}
	for _, line := range lines {
		rule, err := table.ParseRule(line)
		if err != nil {
			t.Fatal(err)
		}
		table.AddRule(rule)
	}

	stats := table.Stats()
	if stats.RuleCount != 3 || stats.SourceCount != 3 {
		t.Errorf("counts = %d rules, %d sources; want 3, 3", stats.RuleCount, stats.SourceCount)
	}
	if stats.MaxArity != 2 {
		t.Errorf("MaxArity = %d, want 2", stats.MaxArity)
	}
}

func TestGlueRules(t *testing.T) {
	table := NewTable(testWeights(), 0)
	glue := table.GlueRules()
	if len(glue) != 2 {
		t.Fatalf("got %d glue rules, want 2", len(glue))
	}

	lift, concat := glue[0], glue[1]
	if lift.LHS != GlueLabel || lift.Arity() != 1 {
		t.Errorf("lift rule: LHS %q, arity %d", lift.LHS, lift.Arity())
	}
	if concat.LHS != GlueLabel || concat.Arity() != 2 {
		t.Errorf("concat rule: LHS %q, arity %d", concat.LHS, concat.Arity())
	}
	// the weights charge -0.3 per glue application
	if lift.Score != -0.3 || concat.Score != -0.3 {
		t.Errorf("glue scores = %v, %v; want -0.3", lift.Score, concat.Score)
	}
	if concat.Source[0].Text != GlueLabel || concat.Source[1].Text != TopLabel {
		t.Errorf("concat source = %v", concat.Source)
	}
}

func TestOOVRule(t *testing.T) {
	table := NewTable(testWeights(), 0)
	rule := table.OOVRule("zebra")
	if rule.LHS != TopLabel {
		t.Errorf("LHS = %q", rule.LHS)
	}
	if rule.SourceKey() != "zebra" {
		t.Errorf("source key = %q", rule.SourceKey())
	}
	if len(rule.Target) != 1 || rule.Target[0].Text != "zebra" {
		t.Errorf("target = %v", rule.Target)
	}
	if rule.Score != -10 {
		t.Errorf("score = %v, want -10", rule.Score)
	}
}
