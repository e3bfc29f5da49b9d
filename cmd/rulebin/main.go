// Package main implements rulebin, the grammar compiler. It reads a text
// grammar, ranks and caps the target options per source pattern, and writes
// the surviving rules as binary msgpack chunks that mosesd loads at startup.
//
// Usage:
//
//	rulebin -in grammar.txt -out data/ -chunk 50000 -limit 20
package main

import (
	"flag"
	"os"

	"github.com/Bishoptylaor/mosesdecoder/internal/logger"
	"github.com/Bishoptylaor/mosesdecoder/internal/utils"
	"github.com/Bishoptylaor/mosesdecoder/pkg/config"
	"github.com/Bishoptylaor/mosesdecoder/pkg/ruletable"
	"github.com/charmbracelet/log"
)

func main() {
	defaultConfig := config.DefaultConfig()

	inPath := flag.String("in", "", "Text grammar file to compile")
	outDir := flag.String("out", "data/", "Directory for the binary chunk files")
	configPath := flag.String("f", "", "Path to the TOML config file, used for feature weights")
	chunkSize := flag.Int("chunk", defaultConfig.Rules.ChunkSize, "Number of rules per chunk file")
	tableLimit := flag.Int("limit", defaultConfig.Decoder.TableLimit, "Max target options kept per source pattern (0 for unlimited)")
	debugMode := flag.Bool("d", false, "Toggle debug mode")

	flag.Parse()

	if *debugMode {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	out := logger.Default("rulebin")

	if *inPath == "" {
		log.Error("No input grammar given")
		flag.Usage()
		os.Exit(1)
	}

	// weights decide which target options survive the table limit
	appConfig, _, err := config.LoadConfigWithPriority(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	table := ruletable.NewTable(appConfig.Weights.ScoreWeights(), *tableLimit)

	if _, err := table.LoadText(utils.GetAbsolutePath(*inPath)); err != nil {
		log.Fatalf("Failed to load grammar: %v", err)
	}
	stats := table.Stats()
	out.Infof("Kept %s rules over %s source patterns (table limit %d)",
		utils.FormatWithCommas(stats.RuleCount), utils.FormatWithCommas(stats.SourceCount), *tableLimit)

	written, err := ruletable.WriteChunks(utils.GetAbsolutePath(*outDir), table.Rules(), *chunkSize)
	if err != nil {
		log.Fatalf("Failed to write chunks: %v", err)
	}
	out.Infof("Wrote %d chunk files to (%s)", written, *outDir)
}
