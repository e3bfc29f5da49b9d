package ruletable

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

var chunkTestLines = []string{
	"le chat ||| the cat ||| -0.5 -1.25",
	"ne [X] pas ||| do not [X,1] ||| -0.75",
	"[X] de [X] ||| [X,2] 's [X,1] ||| -1",
	"der ||| the ||| -0.25",
	"haus ||| house ||| -0.5",
}

func loadedTestTable(t *testing.T) *Table {
	t.Helper()
	table := NewTable(testWeights(), 0)
	for _, line := range chunkTestLines {
		rule, err := table.ParseRule(line)
		if err != nil {
			t.Fatal(err)
		}
		table.AddRule(rule)
	}
	return table
}

func TestChunkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	source := loadedTestTable(t)

	written, err := WriteChunks(dir, source.Rules(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if written != 3 {
		t.Fatalf("wrote %d chunks, want 3", written)
	}

	chunks, err := ScanChunks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 {
		t.Fatalf("scanned %d chunks, want 3", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.ChunkID != i+1 {
			t.Errorf("chunk %d has ID %d", i, chunk.ChunkID)
		}
	}
	if chunks[0].RuleCount != 2 || chunks[2].RuleCount != 1 {
		t.Errorf("rule counts = %d, %d, %d", chunks[0].RuleCount, chunks[1].RuleCount, chunks[2].RuleCount)
	}

	reloaded := NewTable(testWeights(), 0)
	total, err := reloaded.LoadChunks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if total != len(chunkTestLines) {
		t.Fatalf("reloaded %d rules, want %d", total, len(chunkTestLines))
	}

	for _, key := range []string{"le chat", "ne [X] pas", "[X] de [X]", "der", "haus"} {
		want := source.Lookup(key)
		got := reloaded.Lookup(key)
		if len(got) != len(want) {
			t.Fatalf("key %q: %d alternatives, want %d", key, len(got), len(want))
		}
		for i := range want {
			if math.Abs(got[i].Score-want[i].Score) > 1e-12 {
				t.Errorf("key %q alt %d: score %v, want %v", key, i, got[i].Score, want[i].Score)
			}
			if renderTarget(got[i]) != renderTarget(want[i]) {
				t.Errorf("key %q alt %d: target %q, want %q", key, i, renderTarget(got[i]), renderTarget(want[i]))
			}
		}
	}
}

func TestLoadChunksEmptyDir(t *testing.T) {
	table := NewTable(testWeights(), 0)
	if _, err := table.LoadChunks(t.TempDir()); err == nil {
		t.Error("empty directory did not fail")
	}
}

func TestWriteChunksCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "model", "rules")
	source := loadedTestTable(t)
	if _, err := WriteChunks(dir, source.Rules(), 0); err != nil {
		t.Fatal(err)
	}
	chunks, err := ScanChunks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Errorf("got %d chunks, want 1", len(chunks))
	}
}

func TestLoadTextSkipsBadLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grammar.txt")
	content := "# test grammar\n" +
		"le chat ||| the cat ||| -0.5\n" +
		"\n" +
		"broken line without separators\n" +
		"ne [X] pas ||| do not [X,1] ||| -0.75\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	table := NewTable(testWeights(), 0)
	added, err := table.LoadText(path)
	if err != nil {
		t.Fatal(err)
	}
	if added != 2 {
		t.Errorf("added %d rules, want 2", added)
	}
	if got := table.Lookup("le chat"); len(got) != 1 {
		t.Errorf("lookup after load = %v", got)
	}
}
