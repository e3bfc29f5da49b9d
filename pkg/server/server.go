package server

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Bishoptylaor/mosesdecoder/pkg/translate"
)

// Server handles the IPC for translation requests
type Server struct {
	translator *translate.Translator
	maxNBest   int
	maxSource  int
	decoder    *msgpack.Decoder
	writer     *bufio.Writer
	encoder    *msgpack.Encoder
}

// NewServer creates a translation server using stdin/stdout for IPC
func NewServer(translator *translate.Translator, maxNBest, maxSourceLen int) *Server {
	return NewServerWithIO(translator, maxNBest, maxSourceLen, os.Stdin, os.Stdout)
}

// NewServerWithIO creates a server over explicit streams, for tests and for
// embedding behind another transport.
func NewServerWithIO(translator *translate.Translator, maxNBest, maxSourceLen int, r io.Reader, w io.Writer) *Server {
	if maxNBest < 1 {
		maxNBest = 100
	}
	if maxSourceLen < 1 {
		maxSourceLen = 200
	}
	bw := bufio.NewWriter(w)
	return &Server{
		translator: translator,
		maxNBest:   maxNBest,
		maxSource:  maxSourceLen,
		decoder:    msgpack.NewDecoder(bufio.NewReader(r)),
		writer:     bw,
		encoder:    msgpack.NewEncoder(bw),
	}
}

// Start begins listening for IPC requests
func (s *Server) Start() error {
	log.Debug("Starting server.")

	// Signal that the server is ready
	s.sendResponse(map[string]string{"status": "ready"})

	// incoming requests stdin
	for {
		var raw msgpack.RawMessage
		if err := s.decoder.Decode(&raw); err != nil {
			if err == io.EOF {
				return nil
			}
			log.Errorf("Reading from stdin: %v", err)
			return err
		}
		s.handleRequest(raw)
	}
}

// handleRequest dispatches one decoded frame on its fields: frames with an
// action are grammar ops, everything else is a translation request.
func (s *Server) handleRequest(raw msgpack.RawMessage) {
	var probe struct {
		ID     string `msgpack:"id"`
		Action string `msgpack:"action"`
	}
	if err := msgpack.Unmarshal(raw, &probe); err != nil {
		s.sendError("", "Invalid msgpack request", 400)
		log.Errorf("Unmarshaling request: %v", err)
		return
	}

	if probe.Action != "" {
		s.handleGrammar(probe.ID, probe.Action)
		return
	}

	var request TranslationRequest
	if err := msgpack.Unmarshal(raw, &request); err != nil {
		s.sendError(probe.ID, "Invalid translation request", 400)
		log.Errorf("Unmarshaling translation request: %v", err)
		return
	}
	s.handleTranslate(request)
}

// handleTranslate processes a translation request. It validates the source,
// clamps the n-best size to the configured cap, decodes, and sends the ranked
// hypotheses with per-feature breakdowns and timing.
func (s *Server) handleTranslate(request TranslationRequest) {
	source := strings.TrimSpace(request.Source)

	if source == "" {
		s.sendError(request.ID, "Missing 'src' parameter", 400)
		log.Debug("Source is empty in request")
		return
	}
	if tokens := len(strings.Fields(source)); tokens > s.maxSource {
		s.sendError(request.ID, fmt.Sprintf("Source exceeds maximum length of %d tokens", s.maxSource), 400)
		log.Debug("Source is too long in request")
		return
	}

	nbest := request.NBest
	if nbest < 1 {
		nbest = 1
	}
	if nbest > s.maxNBest {
		nbest = s.maxNBest
	}

	start := time.Now()
	results, err := s.translator.TranslateDistinct(source, nbest, request.Distinct)
	elapsed := time.Since(start)
	if err != nil {
		s.sendError(request.ID, err.Error(), 500)
		log.Errorf("Translating %q: %v", source, err)
		return
	}

	hyps := make([]TranslationHypothesis, len(results))
	for i, r := range results {
		hyps[i] = TranslationHypothesis{
			Output:    r.Output,
			Score:     r.Score,
			Rank:      uint16(i + 1),
			Breakdown: r.Breakdown.String(),
		}
	}

	s.sendResponse(TranslationResponse{
		ID:        request.ID,
		Hyps:      hyps,
		Count:     len(hyps),
		TimeTaken: elapsed.Microseconds(),
	})
}

// handleGrammar processes rule table inspection requests
func (s *Server) handleGrammar(id, action string) {
	switch action {
	case "get_info":
		stats := s.translator.GrammarStats()
		s.sendResponse(GrammarResponse{
			ID:          id,
			Status:      "ok",
			RuleCount:   stats.RuleCount,
			SourceCount: stats.SourceCount,
			MaxArity:    stats.MaxArity,
			TableLimit:  stats.TableLimit,
		})
	case "health":
		s.sendResponse(GrammarResponse{ID: id, Status: "ok"})
	default:
		s.sendResponse(GrammarResponse{
			ID:     id,
			Status: "error",
			Error:  fmt.Sprintf("Unknown action: %s", action),
		})
	}
}

// sendResponse encodes the response and flushes it so clients reading the
// pipe see complete frames.
func (s *Server) sendResponse(response interface{}) {
	if err := s.encoder.Encode(response); err != nil {
		log.Errorf("Encoding response: %v", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		log.Errorf("Flushing response: %v", err)
	}
}

// sendError sends an error frame
func (s *Server) sendError(id, message string, code int) {
	s.sendResponse(TranslationError{
		ID:    id,
		Error: message,
		Code:  code,
	})
}
