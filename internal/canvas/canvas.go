package canvas

// #region imports
import (
	"encoding/json"
	"fmt"

	"github.com/zeebo/xxh3"
)

// #endregion

// #region fingerprint-of

// FingerprintOf returns the 128-bit xxh3 hash of raw document text.
func FingerprintOf(raw string) Fingerprint {
	h := xxh3.HashString128(raw)
	return Fingerprint(fmt.Sprintf("%016x%016x", h.Hi, h.Lo))
}

// #endregion

// #region codec

// Marshal encodes a canvas for durable storage.
func Marshal(c *Canvas) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal canvas: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a stored canvas and checks it belongs to fp.
func Unmarshal(fp Fingerprint, data []byte) (*Canvas, error) {
	var c Canvas
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal canvas: %w", err)
	}
	if c.Fingerprint != fp {
		return nil, fmt.Errorf("fingerprint mismatch: stored %q, want %q", c.Fingerprint, fp)
	}
	return &c, nil
}

// #endregion
