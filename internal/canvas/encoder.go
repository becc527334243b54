package canvas

// #region imports
import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// #endregion

// #region encoder-interface

// Encoder turns raw document text into a Canvas.
type Encoder interface {
	Encode(ctx context.Context, raw string) (*Canvas, error)
}

// #endregion

// #region heuristic-encoder

// HeuristicEncoder is a deterministic extractive encoder. It takes the lead
// sentence of each chunk as a key point, counts capitalised tokens as
// entities and keeps double-quoted spans as quotes. No model call.
type HeuristicEncoder struct {
	config EncoderConfig
}

// NewHeuristicEncoder creates an encoder with the given configuration.
func NewHeuristicEncoder(config EncoderConfig) *HeuristicEncoder {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultEncoderConfig().ChunkSize
	}
	if config.MaxChunks <= 0 {
		config.MaxChunks = DefaultEncoderConfig().MaxChunks
	}
	return &HeuristicEncoder{config: config}
}

// Encode builds a Canvas for raw. The fingerprint is always derived from raw.
func (e *HeuristicEncoder) Encode(ctx context.Context, raw string) (*Canvas, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &Canvas{
		Fingerprint:  FingerprintOf(raw),
		SizeEstimate: EstimateTokens(raw),
	}
	for _, chunk := range chunkText(raw, e.config.ChunkSize, e.config.MaxChunks) {
		if lead := leadSentence(chunk); lead != "" {
			c.KeyPoints = append(c.KeyPoints, lead)
		}
	}
	c.Entities = extractEntities(raw, e.config.MaxEntities)
	c.Quotes = extractQuotes(raw, e.config.MaxQuotes)
	if len(c.KeyPoints) == 0 {
		c.Notes = "empty document"
	}
	return c, nil
}

// EstimateTokens approximates token count as one token per four runes.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// #endregion

// #region chunking

func chunkText(raw string, size, maxChunks int) []string {
	runes := []rune(strings.TrimSpace(raw))
	if len(runes) == 0 {
		return nil
	}
	var chunks []string
	for start := 0; start < len(runes) && len(chunks) < maxChunks; start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[start:end])))
	}
	return chunks
}

func leadSentence(chunk string) string {
	idx := strings.IndexAny(chunk, ".!?\n")
	if idx < 0 {
		return strings.TrimSpace(chunk)
	}
	return strings.TrimSpace(chunk[:idx+1])
}

// #endregion

// #region entities

// stopwords are capitalised at sentence starts often enough to be noise.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "it": true, "its": true, "this": true,
	"that": true, "these": true, "those": true, "and": true, "or": true,
	"but": true, "if": true, "in": true, "on": true, "at": true,
	"for": true, "of": true, "to": true, "with": true, "as": true,
	"we": true, "they": true, "he": true, "she": true, "i": true,
	"when": true, "where": true, "what": true, "which": true, "who": true,
}

func extractEntities(raw string, limit int) []Entity {
	words := strings.FieldsFunc(raw, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	counts := make(map[string]int)
	for _, w := range words {
		first, _ := utf8.DecodeRuneInString(w)
		if !unicode.IsUpper(first) || utf8.RuneCountInString(w) < 2 {
			continue
		}
		if stopwords[strings.ToLower(w)] {
			continue
		}
		counts[w]++
	}

	entities := make([]Entity, 0, len(counts))
	for name, n := range counts {
		entities = append(entities, Entity{Name: name, Type: entityType(name), Mentions: n})
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Mentions != entities[j].Mentions {
			return entities[i].Mentions > entities[j].Mentions
		}
		return entities[i].Name < entities[j].Name
	})
	if limit > 0 && len(entities) > limit {
		entities = entities[:limit]
	}
	return entities
}

func entityType(name string) string {
	allUpper := true
	for _, r := range name {
		if unicode.IsLower(r) {
			allUpper = false
			break
		}
	}
	if allUpper {
		return "acronym"
	}
	return "proper_noun"
}

// #endregion

// #region quotes

func extractQuotes(raw string, limit int) []string {
	var quotes []string
	rest := raw
	for limit <= 0 || len(quotes) < limit {
		open := strings.IndexByte(rest, '"')
		if open < 0 {
			break
		}
		closeIdx := strings.IndexByte(rest[open+1:], '"')
		if closeIdx < 0 {
			break
		}
		q := strings.TrimSpace(rest[open+1 : open+1+closeIdx])
		if q != "" {
			quotes = append(quotes, q)
		}
		rest = rest[open+closeIdx+2:]
	}
	return quotes
}

// #endregion
