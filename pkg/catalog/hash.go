package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var slugRegex = regexp.MustCompile(`[^a-z0-9]+`)

// ContentHash computes the deterministic identity of a manifest: a sha256
// over its canonical serialization. Canonical form is obtained by
// round-tripping through a generic map so that key order is normalized.
func ContentHash(m *Manifest) (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to serialize manifest: %w", err)
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("failed to canonicalize manifest: %w", err)
	}

	// json.Marshal emits map keys in sorted order, which gives us the
	// canonical byte stream
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("failed to serialize canonical manifest: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ProviderSlug derives the provider identifier from a manifest's name and
// author. Multiple versions of the same plugin share one slug.
func ProviderSlug(name, author string) string {
	combined := strings.ToLower(name + " " + author)
	slug := slugRegex.ReplaceAllString(combined, "-")
	return strings.Trim(slug, "-")
}
