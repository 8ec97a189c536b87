package actionloop

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// HashArgs computes the canonical fingerprint of a tool's bound arguments.
// Serialization goes through encoding/json, which emits map keys in sorted
// order, so two argument maps with the same entries hash identically
// regardless of insertion order.
func HashArgs(args map[string]any) (string, error) {
	if len(args) == 0 {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to serialize args for hashing: %w", err)
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%x", sum), nil
}
