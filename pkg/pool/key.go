package pool

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ReuseKey identifies when two requests may share one running sandbox:
// the hash of the provider id and the canonicalized runtime config.
// json.Marshal emits map keys in sorted order, which makes the config
// serialization canonical.
func ReuseKey(providerID string, config map[string]any) (string, error) {
	canonical, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize config: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(providerID))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
