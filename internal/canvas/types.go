package canvas

// #region fingerprint

// Fingerprint is the content hash of a source document, hex-encoded.
type Fingerprint string

// #endregion

// #region entity

// Entity is a named thing extracted from source text.
type Entity struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Mentions int    `json:"mentions"`
}

// #endregion

// #region canvas

// Canvas is the compressed view of one document.
// A Canvas handed out by the cache is shared between queries and must be
// treated as read-only; use Context for anything a reasoning pass adds.
type Canvas struct {
	Fingerprint  Fingerprint `json:"fingerprint"`
	KeyPoints    []string    `json:"key_points"`
	Entities     []Entity    `json:"entities"`
	Quotes       []string    `json:"quotes"`
	Notes        string      `json:"notes"`
	SizeEstimate int         `json:"size_estimate"`
}

// #endregion

// #region encoder-config

// EncoderConfig tunes the heuristic encoder.
type EncoderConfig struct {
	ChunkSize   int // runes per chunk
	MaxChunks   int
	MaxEntities int
	MaxQuotes   int
}

// DefaultEncoderConfig returns the stock chunking limits.
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		ChunkSize:   1800,
		MaxChunks:   8,
		MaxEntities: 12,
		MaxQuotes:   6,
	}
}

// #endregion
