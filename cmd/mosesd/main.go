// Copyright 2025 The mosesdecoder Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the translation server and CLI [DBG] application.

Note: This is a BETA release. APIs and functionality may rapidly change.

mosesd provides hierarchical phrase-based translation using a chart parser
over a Patricia trie rule table with lazy k-best derivation extraction. It can
operate as a MessagePack IPC server for integration with other processes, or
as a CLI application for testing and debugging.

The decoder builds a packed hypothesis forest per sentence and extracts ranked
derivations on demand, so large n-best lists only pay for the ranks a client
actually requests. Rules are ranked by weighted model score and capped per
source pattern to keep the search tractable.

# Usage

Start the server with a text grammar:

	mosesd -g grammar.txt

Use a directory of binary rule chunks and enable debug mode:

	mosesd -g /path/to/chunks -d

Run in CLI mode for interactive testing:

	mosesd -g grammar.txt -c -n 5 -distinct

A chunk directory should contain binary files named rules_0001.bin,
rules_0002.bin, etc. These files are generated from a text grammar by the
rulebin tool and loaded in order at startup.

# Configuration

Runtime configuration is managed through a TOML file that supports decoder
parameters, feature weights, grammar locations, and server limits:

	[decoder]
	nbest = 1
	distinct = false
	max_rule_span = 10
	table_limit = 20

	[weights]
	tm = [0.25, 0.25, 0.25, 0.25]
	wp = [-1.0]
	glue = [-0.3]
	oov = [-100.0]

The config file is automatically created with defaults if it doesn't exist.

# IPC Protocol

The server communicates via MessagePack over stdin/stdout. Translation
requests are processed synchronously with microsecond timing information
included in responses.

Send a translation request:

	{"id": "req1", "src": "le chat dort", "n": 5, "d": true}

Receive hypotheses ranked by model score:

	{"id": "req1", "h": [{"o": "the cat sleeps", "s": -2.31, "r": 1}], "c": 1, "t": 145}

Grammar management requests expose the loaded rule set:

	{"id": "g1", "action": "get_info"}

# Server Mode

The default mode starts a MessagePack IPC server that processes translation
requests from stdin and writes responses to stdout. This design enables
integration with pipelines and applications through process communication.

	srv := server.NewServer(translator, maxNBest, maxSourceLen)
	err := srv.Start()

The server handles request parsing, validation, n-best clamping, and response
formatting. All logging goes to stderr so the stdout frame stream stays clean.

# CLI Mode

CLI mode provides an interactive interface for testing and debugging the
decoder. It reads source sentences from stdin and displays ranked translations
with model scores.

	inputHandler := cli.NewInputHandler(translator, nbest, maxSourceLen, showBreakdown)
	err := inputHandler.Start()

This mode is primarily intended for development and testing new features
before deploying to server mode.

# Decoding Engine

The core functionality is provided by the chart, kbest, and translate
packages: a CYK-style chart parser binds grammar rules over spans, shared
sub-derivations are packed into a hypothesis forest, and the k-best extractor
lazily enumerates ranked derivations from it.

	table := ruletable.NewTable(weights, tableLimit)
	table.LoadText("grammar.txt")
	translator := translate.New(table, translate.Options{NBest: 5})
	results, err := translator.Translate("le chat dort", 5)

# Command Line Flags

The following flags control application behavior:

	-f string
	    Path to the TOML config file
	-g string
	    Path to a text grammar file or a directory of binary rule chunks
	-d  Enable debug mode with detailed logging
	-c  Run in CLI mode instead of server mode
	-n int
	    Number of translations to return per sentence (default from config)
	-distinct
	    Deduplicate n-best lists by output string
	-breakdown
	    Show per-feature score breakdowns in CLI output
	-version
	    Show current version

Unknown source tokens pass through as OOV translations with a configurable
penalty, so decoding never fails on vocabulary gaps.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Bishoptylaor/mosesdecoder/internal/cli"
	"github.com/Bishoptylaor/mosesdecoder/internal/logger"
	"github.com/Bishoptylaor/mosesdecoder/internal/utils"
	"github.com/Bishoptylaor/mosesdecoder/pkg/config"
	"github.com/Bishoptylaor/mosesdecoder/pkg/ruletable"
	"github.com/Bishoptylaor/mosesdecoder/pkg/server"
	"github.com/Bishoptylaor/mosesdecoder/pkg/translate"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

const (
	Version = "0.2.0-beta"
	AppName = "mosesd"
	gh      = "https://github.com/Bishoptylaor/mosesdecoder"
)

// sigHandler is a simple handler for OS signals to exit normally.
func sigHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		os.Exit(0)
	}()
}

// main calls other packages to initialize the server or CLI inputs.
// main() does not implement logic for them and only manages the flow.
func main() {
	sigHandler()
	defaultConfig := config.DefaultConfig()

	// custom Flags
	showVersion := flag.Bool("version", false, "Show current version")
	configPath := flag.String("f", "", "Path to the TOML config file")
	grammarPath := flag.String("g", "", "Path to a text grammar file or a directory of binary rule chunks")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	cliMode := flag.Bool("c", false, "Run CLI -- useful for testing and debugging")
	nbest := flag.Int("n", defaultConfig.Decoder.NBest, "Number of translations to return per sentence")
	distinct := flag.Bool("distinct", defaultConfig.Decoder.Distinct, "Deduplicate n-best lists by output string")
	showBreakdown := flag.Bool("breakdown", defaultConfig.CLI.ShowBreakdown, "Show per-feature score breakdowns in CLI output")

	flag.Parse()

	if *showVersion {
		logger := log.NewWithOptions(os.Stderr, log.Options{
			ReportCaller:    false,
			ReportTimestamp: false,
			Prefix:          "",
		})

		styles := log.DefaultStyles()

		styles.Values["version"] = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
		styles.Values["version"] = lipgloss.NewStyle().
			Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})

		styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})

		logger.SetStyles(styles)

		logger.Print("")
		logger.Print("[ mosesd ] Hierarchical phrase-based translation, lazily ranked!")
		logger.Print("", "version", Version)
		logger.Print("")
		logger.Print("use -h or --help to see available options")
		logger.Print("Github Repo", "gh", gh)

		os.Exit(0)
	}

	if *debugMode {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	appConfig, activeConfigPath, err := config.LoadConfigWithPriority(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if activeConfigPath != "" {
		log.Debugf("Using config file: (%s)", activeConfigPath)
	}
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	table := ruletable.NewTable(appConfig.Weights.ScoreWeights(), appConfig.Decoder.TableLimit)
	if err := loadGrammar(table, *grammarPath, appConfig); err != nil {
		log.Fatalf("Failed to load grammar: %v", err)
	}

	stats := table.Stats()
	if stats.RuleCount == 0 {
		log.Warn("No grammar loaded, every token will decode as OOV...")
	} else {
		log.Debugf("Loaded %s rules over %s source patterns (max arity %d)",
			utils.FormatWithCommas(stats.RuleCount),
			utils.FormatWithCommas(stats.SourceCount),
			stats.MaxArity)
	}

	translator := translate.New(table, translate.Options{
		NBest:       *nbest,
		Distinct:    *distinct,
		MaxRuleSpan: appConfig.Decoder.MaxRuleSpan,
	})

	// CLI would be mainly used for testing and dbg purposes.
	// Any new features or changes should be tested in CLI mode first.
	if *cliMode {
		log.SetReportTimestamp(false)
		log.Debug("Input info:",
			"nbest", *nbest,
			"distinct", *distinct,
			"maxRuleSpan", appConfig.Decoder.MaxRuleSpan,
			"breakdown", *showBreakdown)

		inputHandler := cli.NewInputHandler(translator, *nbest, appConfig.Server.MaxSourceLen, *showBreakdown)
		if err := inputHandler.Start(); err != nil {
			log.Fatalf("CLI error: %v", err)
		}
		return
	}

	log.Debug("spawning IPC")
	srv := server.NewServer(translator, appConfig.Server.MaxNBest, appConfig.Server.MaxSourceLen)

	showStartupInfo(stats)

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// loadGrammar fills the table from the -g path when given, falling back to
// the configured binary dir and then the configured text grammar. A -g path
// that names a directory is treated as binary chunks, a file as text.
func loadGrammar(table *ruletable.Table, grammarPath string, cfg *config.Config) error {
	load := func(path string) error {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		var loaded int
		if info.IsDir() {
			loaded, err = table.LoadChunks(path)
		} else {
			loaded, err = table.LoadText(path)
		}
		if err != nil {
			return err
		}
		log.Debugf("Loaded %s rules from (%s)", utils.FormatWithCommas(loaded), path)
		return nil
	}

	switch {
	case grammarPath != "":
		return load(utils.GetAbsolutePath(grammarPath))
	case cfg.Rules.BinaryDir != "":
		return load(utils.GetAbsolutePath(cfg.Rules.BinaryDir))
	case cfg.Rules.GrammarFile != "":
		return load(utils.GetAbsolutePath(cfg.Rules.GrammarFile))
	}
	return nil
}

// showStartupInfo displays some basic info about the init process. It prints
// through its own logger so the global level keeps filtering everything else.
func showStartupInfo(stats ruletable.TableStats) {
	startup := logger.NewWithConfig("", log.InfoLevel, false, false, log.TextFormatter)

	println("===========")
	println("  mosesd   ")
	println("===========")
	startup.Infof("Version: %s", Version)
	startup.Infof("Process ID: [ %d ]", os.Getpid())
	startup.Info("init: OK")
	startup.Infof("rules: [ %s ] sources: [ %s ]",
		utils.FormatWithCommas(stats.RuleCount), utils.FormatWithCommas(stats.SourceCount))
	startup.Info("status: ready")
	println("===========")
	println("Press Ctrl+C to exit")
}
