package ruletable

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Bishoptylaor/mosesdecoder/pkg/hypergraph"
)

// Chunk files hold a little-endian int32 rule count followed by that many
// msgpack-encoded records. Splitting the grammar across numbered chunks keeps
// individual files small enough to ship and verify independently.
const (
	chunkFilePrefix  = "rules_"
	chunkFileSuffix  = ".bin"
	DefaultChunkSize = 50000
)

// ruleRecord is the on-disk form of one rule. Source and target reuse the
// grammar line syntax so the chunk and text paths share one parser; derived
// features and the weighted score are rebuilt at load time.
type ruleRecord struct {
	Source   string    `msgpack:"s"`
	Target   string    `msgpack:"t"`
	Features []float64 `msgpack:"f"`
}

// ChunkInfo describes one chunk file found on disk.
type ChunkInfo struct {
	ChunkID   int
	Filename  string
	RuleCount int
}

func chunkFilename(dir string, id int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%04d%s", chunkFilePrefix, id, chunkFileSuffix))
}

// ScanChunks lists the chunk files under dir in chunk ID order.
func ScanChunks(dir string) ([]ChunkInfo, error) {
	pattern := filepath.Join(dir, chunkFilePrefix+"*"+chunkFileSuffix)
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for chunk files: %w", err)
	}

	var chunks []ChunkInfo
	for _, file := range files {
		basename := filepath.Base(file)
		idStr := strings.TrimSuffix(strings.TrimPrefix(basename, chunkFilePrefix), chunkFileSuffix)
		id, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		count, err := chunkRuleCount(file)
		if err != nil {
			log.Warnf("Failed to read rule count from chunk %s: %v", file, err)
			count = 0
		}
		chunks = append(chunks, ChunkInfo{ChunkID: id, Filename: file, RuleCount: count})
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].ChunkID < chunks[j].ChunkID
	})
	return chunks, nil
}

// chunkRuleCount reads just the count header of a chunk file.
func chunkRuleCount(filename string) (int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var count int32
	if err := binary.Read(file, binary.LittleEndian, &count); err != nil {
		return 0, err
	}
	if count < 0 {
		return 0, fmt.Errorf("negative rule count %d", count)
	}
	return int(count), nil
}

// LoadChunks loads every chunk under dir into the table, in chunk ID order
// so equal-scoring alternatives rank the same on every run. Decoding needs
// the whole grammar up front; a chunk that cannot be read fails the load
// rather than silently shrinking the rule inventory.
func (t *Table) LoadChunks(dir string) (int, error) {
	chunks, err := ScanChunks(dir)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no chunk files found in %s", dir)
	}

	total := 0
	for _, chunk := range chunks {
		n, err := t.loadChunk(chunk.Filename)
		if err != nil {
			return total, fmt.Errorf("failed to load chunk %s: %w", chunk.Filename, err)
		}
		total += n
	}
	log.Debugf("Loaded %d rules from %d chunks in %s", total, len(chunks), dir)
	return total, nil
}

// loadChunk reads one chunk file and adds its rules to the table. Returns
// how many survived the table limit.
func (t *Table) loadChunk(filename string) (int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return 0, fmt.Errorf("failed to open chunk file: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)

	var count int32
	if err := binary.Read(reader, binary.LittleEndian, &count); err != nil {
		return 0, fmt.Errorf("failed to read chunk header: %w", err)
	}
	log.Debugf("Loading chunk %s with %d rules", filename, count)

	dec := msgpack.NewDecoder(reader)
	added := 0
	for i := 0; i < int(count); i++ {
		var rec ruleRecord
		if err := dec.Decode(&rec); err != nil {
			return added, fmt.Errorf("failed to decode rule %d: %w", i, err)
		}
		rule, err := t.ruleFromRecord(rec)
		if err != nil {
			return added, fmt.Errorf("bad rule %d: %w", i, err)
		}
		if t.AddRule(rule) {
			added++
		}
	}
	return added, nil
}

func (t *Table) ruleFromRecord(rec ruleRecord) (*hypergraph.Rule, error) {
	source, err := parseSource(rec.Source)
	if err != nil {
		return nil, err
	}
	arity := 0
	for _, w := range source {
		if w.NonTerm {
			arity++
		}
	}
	target, err := parseTarget(rec.Target, arity)
	if err != nil {
		return nil, err
	}
	if len(rec.Features) == 0 {
		return nil, fmt.Errorf("record has no feature values")
	}
	return t.buildRule(source, target, rec.Features), nil
}

// WriteChunks writes rules to numbered chunk files under dir, chunkSize rules
// per file, replacing any chunks already there. Returns the number of chunks
// written.
func WriteChunks(dir string, rules []*hypergraph.Rule, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create chunk directory %s: %w", dir, err)
	}

	written := 0
	for start := 0; start < len(rules); start += chunkSize {
		end := start + chunkSize
		if end > len(rules) {
			end = len(rules)
		}
		filename := chunkFilename(dir, written+1)
		if err := writeChunk(filename, rules[start:end]); err != nil {
			return written, err
		}
		written++
		log.Debugf("Wrote chunk %s with %d rules", filename, end-start)
	}
	return written, nil
}

func writeChunk(filename string, rules []*hypergraph.Rule) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create chunk file %s: %w", filename, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := binary.Write(writer, binary.LittleEndian, int32(len(rules))); err != nil {
		return fmt.Errorf("failed to write chunk header: %w", err)
	}

	enc := msgpack.NewEncoder(writer)
	for _, r := range rules {
		rec := ruleRecord{
			Source:   renderSource(r),
			Target:   renderTarget(r),
			Features: r.Features["tm"],
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode rule %v: %w", r, err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush chunk file %s: %w", filename, err)
	}
	return nil
}
