/*
Package server implements msgpack IPC for translation services.

The server package provides a minimal interface for sentence translation using
msgpack serialization over stdin/stdout.

The protocol uses binary msgpack encoding and supports translation requests
and grammar management ops. Messages are processed synchronously with timing
info included in responses.

# IPC

The server operates on a request response model where clients send structured
messages via stdin and receive responses through stdout. Each message contains
an ID field and other fields based on the operation type.

Translation requests use mainly this structure:

	{"id": "req_001", "src": "le chat dort", "n": 5, "d": true}

The server responds with hypotheses ranked by model score:

	{"id": "req_001", "h": [{"o": "the cat sleeps", "s": -2.31, "r": 1}], "c": 1, "t": 145}

Grammar management enables inspecting the loaded rule set:

	{"id": "g_001", "action": "get_info"}
	{"id": "g_002", "action": "health"}

Response structures include status information and error details when an op
fails. On startup the server emits a single {"status": "ready"} frame so
clients know when to start sending.

# Message Types

TranslationRequest and TranslationResponse handle the main decoding operation.
Requests carry a source sentence, an optional n-best size and a distinct flag
for deduplicating hypotheses by surface string. Responses contain hypothesis
arrays with output strings, model scores, ranks and the per-feature score
breakdown, plus timing data in microseconds.

GrammarRequest and GrammarResponse expose rule table counters without
interrupting the request stream.

TranslationError frames report malformed or rejected requests with an HTTP
style code, echoing the request ID when one was readable.
*/
package server

// TranslationRequest - minimal translation request
type TranslationRequest struct {
	ID       string `msgpack:"id"`
	Source   string `msgpack:"src"`
	NBest    int    `msgpack:"n,omitempty"`
	Distinct bool   `msgpack:"d,omitempty"`
}

// TranslationHypothesis - one ranked decoding result
type TranslationHypothesis struct {
	Output    string  `msgpack:"o"`
	Score     float64 `msgpack:"s"`
	Rank      uint16  `msgpack:"r"`
	Breakdown string  `msgpack:"b,omitempty"`
}

// TranslationResponse - translation response
type TranslationResponse struct {
	ID        string                  `msgpack:"id"`
	Hyps      []TranslationHypothesis `msgpack:"h"`
	Count     int                     `msgpack:"c"`
	TimeTaken int64                   `msgpack:"t"`
}

// GRAMMAR MESSAGES - rule table inspection (weights and limits via TOML)

// GrammarRequest - grammar management request
type GrammarRequest struct {
	ID     string `msgpack:"id"`
	Action string `msgpack:"action"` // "get_info", "health"
}

// GrammarResponse - grammar operation response
type GrammarResponse struct {
	ID          string `msgpack:"id"`
	Status      string `msgpack:"status"`
	Error       string `msgpack:"error,omitempty"`
	RuleCount   int    `msgpack:"rule_count,omitempty"`
	SourceCount int    `msgpack:"source_count,omitempty"`
	MaxArity    int    `msgpack:"max_arity,omitempty"`
	TableLimit  int    `msgpack:"table_limit,omitempty"`
}

// TranslationError holds basic error information for translation requests
type TranslationError struct {
	ID    string `msgpack:"id"`
	Error string `msgpack:"e"`
	Code  int    `msgpack:"c"`
}
