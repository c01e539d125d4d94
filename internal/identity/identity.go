// Package identity derives content fingerprints for validated events.
package identity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/akave-ai/gameevents/internal/model"
)

// Size is the length of an identity in hex characters.
const Size = sha256.Size * 2

// Canonical encodes v as JSON with map keys sorted at every level and
// without HTML escaping.
func Canonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical encode: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Compute returns the lowercase hex SHA-256 of the canonical form of the
// event, ignoring timestamp and event_id.
func Compute(ev model.GameEvent) (string, error) {
	b, err := Canonical(ev.IdentityFields())
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
