// Package cli handles cmd line input and translation output for DBG and testing various features
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Bishoptylaor/mosesdecoder/pkg/translate"
)

// InputHandler processes source sentences from stdin and prints ranked
// translations. It accepts flags to control behavior such as the n-best list
// size, distinct filtering, and per-feature score breakdowns.
type InputHandler struct {
	translator    *translate.Translator
	nbest         int
	maxSourceLen  int
	showBreakdown bool
}

// NewInputHandler handles initialization of the InputHandler with basic parameters
func NewInputHandler(translator *translate.Translator, nbest, maxSourceLen int, showBreakdown bool) *InputHandler {
	if nbest < 1 {
		nbest = 1
	}
	if maxSourceLen < 1 {
		maxSourceLen = 200
	}
	return &InputHandler{
		translator:    translator,
		nbest:         nbest,
		maxSourceLen:  maxSourceLen,
		showBreakdown: showBreakdown,
	}
}

// Start begins the interface loop.
// It continuously prompts for input, reads a line from stdin,
// and passes the trimmed sentence to handleInput() for processing.
// Loop terminates if an error occurs while reading from stdin
func (h *InputHandler) Start() error {
	log.Print("mosesd CLI [BETA]")
	reader := bufio.NewReader(os.Stdin)
	log.Print("type a source sentence and press Enter to see the translations (Ctrl+C to exit):")

	for {
		log.Print("> ")
		source, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		h.handleInput(source)
	}
}

// handleInput decodes a single sentence. It validates the token count, asks
// the translator for the n-best list, and prints the ranked results with
// their model scores to the log.
func (h *InputHandler) handleInput(source string) {
	tokens := len(strings.Fields(source))
	if tokens > h.maxSourceLen {
		log.Errorf("Sentence too long (%d tokens, max %d)", tokens, h.maxSourceLen)
		return
	}

	start := time.Now()
	log.Debug("Processing request for", "source", source)

	results, err := h.translator.Translate(source, h.nbest)
	elapsed := time.Since(start)
	if err != nil {
		log.Errorf("Translating '%s': %v", source, err)
		return
	}
	log.Debugf("Took [ %v ] for '%s'", elapsed, source)

	if len(results) == 0 {
		log.Warnf("No translation found for: '%s'", source)
		return
	}

	log.Printf("Found %d translations for '%s':", len(results), source)
	for i, r := range results {
		clOutput := fmt.Sprintf("\033[38;5;75m%s\033[0m", r.Output)
		log.Printf("%2d. %-40s (score: %8s)", i+1, clOutput, strconv.FormatFloat(r.Score, 'f', 3, 64))
		if h.showBreakdown {
			log.Printf("    %s", r.Breakdown)
		}
	}
}
