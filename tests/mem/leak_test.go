//go:build test

package mem

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
	"testing"

	"github.com/Bishoptylaor/mosesdecoder/pkg/ruletable"
	"github.com/Bishoptylaor/mosesdecoder/pkg/scores"
	"github.com/Bishoptylaor/mosesdecoder/pkg/translate"
	"github.com/charmbracelet/log"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

var testSentences = []string{
	"le chat",
	"le chat dort",
	"le chien dort",
	"le chat mange",
	"ne dort pas",
	"le chat ne dort pas",
	"le chien ne mange pas",
	"chat",
	"dort",
	"le zèbre dort",
}

var longPatterns = [][]string{
	{"le", "le chat", "le chat dort", "le chat dort bien"},
	{"chien", "le chien", "le chien mange", "le chien ne mange pas"},
	{"chat", "chat dort", "le chat dort", "le chat ne dort pas"},
	{"dort", "ne dort pas", "chat ne dort pas", "le chat ne dort pas bien"},
}

// grammarLines is a small hierarchical grammar exercising phrase rules,
// gapped rules, glue concatenation and OOV fallback ("bien", "zèbre").
var grammarLines = []string{
	"le ||| the ||| -0.1",
	"chat ||| cat ||| -0.2",
	"chien ||| dog ||| -0.2",
	"dort ||| sleeps ||| -0.3",
	"mange ||| eats ||| -0.3",
	"le chat ||| the cat ||| -0.15",
	"le chien ||| the dog ||| -0.15",
	"ne [X] pas ||| does not [X,1] ||| -0.4",
	"[X] dort ||| [X,1] sleeps ||| -0.35",
}

func newTestTranslator(tb testing.TB) *translate.Translator {
	weights := scores.Weights{
		"tm":   {1},
		"wp":   {0},
		"glue": {-0.1},
		"oov":  {-10},
	}
	table := ruletable.NewTable(weights, 0)
	for _, line := range grammarLines {
		rule, err := table.ParseRule(line)
		if err != nil {
			tb.Fatalf("grammar fixture: %v", err)
		}
		table.AddRule(rule)
	}
	return translate.New(table, translate.Options{NBest: 10})
}

func TestMemoryLeakBasic(t *testing.T) {
	iterations := []int{100, 500, 1000, 2500, 5000}

	for _, iterCount := range iterations {
		t.Run(fmt.Sprintf("iterations_%d", iterCount), func(t *testing.T) {
			runBasicMemoryTest(t, iterCount, testSentences)
		})
	}
}

func TestMemoryLeakConcurrent(t *testing.T) {
	configs := []struct {
		workers             int
		iterationsPerWorker int
	}{
		{workers: 1, iterationsPerWorker: 1000},
		{workers: 2, iterationsPerWorker: 500},
		{workers: 4, iterationsPerWorker: 250},
		{workers: 8, iterationsPerWorker: 125},
	}

	for _, config := range configs {
		t.Run(fmt.Sprintf("workers_%d_iter_%d", config.workers, config.iterationsPerWorker), func(t *testing.T) {
			runConcurrentMemoryTest(t, config.workers, config.iterationsPerWorker)
		})
	}
}

func TestMemoryStabilityLongRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping long-running memory stability test in short mode")
	}

	cycles := 50
	opsPerCycle := 200

	runLongRunMemoryTest(t, cycles, opsPerCycle)
}

func runBasicMemoryTest(t *testing.T, iterations int, sentences []string) {
	translator := newTestTranslator(t)

	var baseline runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&baseline)
	baselineGoroutines := runtime.NumGoroutine()

	for i := 0; i < iterations; i++ {
		for _, sentence := range sentences {
			results, err := translator.Translate(sentence, 10)
			if err != nil {
				t.Fatalf("translate %q: %v", sentence, err)
			}
			_ = results
		}
	}

	var final runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&final)
	finalGoroutines := runtime.NumGoroutine()

	memDelta := int64(final.Alloc - baseline.Alloc)
	goroutineDelta := finalGoroutines - baselineGoroutines
	totalOps := iterations * len(sentences)
	memPerOp := float64(memDelta) / float64(totalOps)

	t.Logf("iterations=%d ops=%d mem_delta=%d bytes mem_per_op=%.2f goroutine_delta=%d",
		iterations, totalOps, memDelta, memPerOp, goroutineDelta)

	if memPerOp > 1000 {
		t.Errorf("excessive memory usage per operation: %.2f bytes", memPerOp)
	}

	if goroutineDelta > 2 {
		t.Errorf("goroutine leak detected: %d goroutines leaked", goroutineDelta)
	}
}

// runConcurrentMemoryTest gives each worker its own translator; a translator
// is single-threaded by contract, concurrency comes from running several.
func runConcurrentMemoryTest(t *testing.T, workers, iterationsPerWorker int) {
	memFile, err := os.Create("concurrent_memory.prof")
	if err != nil {
		t.Fatalf("profile file creation failed: %v", err)
	}
	defer func() {
		memFile.Close()
		os.Remove("concurrent_memory.prof")
	}()

	translators := make([]*translate.Translator, workers)
	for i := range translators {
		translators[i] = newTestTranslator(t)
	}

	var baseline runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&baseline)
	baselineGoroutines := runtime.NumGoroutine()

	opsPerPattern := 0
	for _, pattern := range longPatterns {
		opsPerPattern += len(pattern)
	}
	totalOps := workers * iterationsPerWorker * opsPerPattern

	var wg sync.WaitGroup
	errCh := make(chan error, workers)

	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(tr *translate.Translator) {
			defer wg.Done()

			for iter := 0; iter < iterationsPerWorker; iter++ {
				for _, pattern := range longPatterns {
					for _, sentence := range pattern {
						if _, err := tr.Translate(sentence, 10); err != nil {
							errCh <- err
							return
						}
					}
				}
			}
		}(translators[worker])
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent translate: %v", err)
	}

	var final runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&final)
	finalGoroutines := runtime.NumGoroutine()

	memDelta := int64(final.Alloc - baseline.Alloc)
	goroutineDelta := finalGoroutines - baselineGoroutines
	memPerOp := float64(memDelta) / float64(totalOps)

	t.Logf("workers=%d iter_per_worker=%d total_ops=%d mem_delta=%d bytes mem_per_op=%.2f goroutine_delta=%d",
		workers, iterationsPerWorker, totalOps, memDelta, memPerOp, goroutineDelta)

	if err := pprof.WriteHeapProfile(memFile); err != nil {
		t.Errorf("heap profile write failed: %v", err)
	}

	if memPerOp > 1000 {
		t.Errorf("excessive memory usage per operation: %.2f bytes", memPerOp)
	}

	if goroutineDelta > 3 {
		t.Errorf("goroutine leak detected: %d goroutines leaked", goroutineDelta)
	}
}

func runLongRunMemoryTest(t *testing.T, cycles, opsPerCycle int) {
	memFile, err := os.Create("longrun_stability.prof")
	if err != nil {
		t.Fatalf("profile file creation failed: %v", err)
	}
	defer func() {
		memFile.Close()
		os.Remove("longrun_stability.prof")
	}()

	translator := newTestTranslator(t)

	var baseline runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&baseline)
	baselineGoroutines := runtime.NumGoroutine()

	totalOps := 0
	maxMemDelta := int64(0)

	for cycle := 0; cycle < cycles; cycle++ {
		for op := 0; op < opsPerCycle; op++ {
			pattern := longPatterns[op%len(longPatterns)]
			sentence := pattern[op%len(pattern)]
			if _, err := translator.Translate(sentence, 10); err != nil {
				t.Fatalf("translate %q: %v", sentence, err)
			}
			totalOps++
		}

		if cycle%10 == 0 {
			var m runtime.MemStats
			runtime.GC()
			runtime.ReadMemStats(&m)

			memDelta := int64(m.Alloc - baseline.Alloc)
			goroutineDelta := runtime.NumGoroutine() - baselineGoroutines
			memPerOp := float64(memDelta) / float64(totalOps)

			if memDelta > maxMemDelta {
				maxMemDelta = memDelta
			}

			t.Logf("cycle=%d ops=%d mem_delta=%d bytes mem_per_op=%.2f goroutine_delta=%d",
				cycle, totalOps, memDelta, memPerOp, goroutineDelta)

			if memPerOp > 1500 {
				t.Errorf("cycle %d: excessive memory usage per operation: %.2f bytes", cycle, memPerOp)
			}

			if goroutineDelta > 2 {
				t.Errorf("cycle %d: goroutine leak detected: %d goroutines leaked", cycle, goroutineDelta)
			}
		}
	}

	if err := pprof.WriteHeapProfile(memFile); err != nil {
		t.Errorf("heap profile write failed: %v", err)
	}

	t.Logf("final: cycles=%d total_ops=%d max_mem_delta=%d bytes", cycles, totalOps, maxMemDelta)
}
