package catalog

import (
	"time"
)

// Manifest is the declarative description a plugin author ships as plugin.json.
// Immutable once discovered under a given content hash.
type Manifest struct {
	Name          string         `json:"name"`
	Version       string         `json:"version"`
	Author        string         `json:"author"`
	Description   string         `json:"description"`
	Logic         string         `json:"logic"`
	UI            string         `json:"ui,omitempty"`
	Permissions   []string       `json:"permissions,omitempty"`
	Features      []string       `json:"features,omitempty"`
	StorageSchema map[string]any `json:"storage_schema,omitempty"`
	APIEndpoints  []string       `json:"api_endpoints,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Entry is one catalog record, keyed by the manifest content hash
type Entry struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Version         string    `json:"version"`
	ProviderID      string    `json:"providerId"`
	Author          string    `json:"author"`
	LogicPath       string    `json:"logicPath"`
	Manifest        Manifest  `json:"manifest"`
	SourceURL       string    `json:"sourceUrl"`
	DiscoveredAt    time.Time `json:"discoveredAt"`
	LastValidatedAt time.Time `json:"lastValidatedAt"`
}

// Candidate is one potential plugin found by a source before validation
type Candidate struct {
	// Identifier names the candidate in scan errors (folder or repo entry name)
	Identifier string
	// ManifestData is the raw plugin.json content; nil means no manifest present
	ManifestData []byte
	// SourceURL points at where the candidate was found
	SourceURL string
	// ResolveLogic turns the manifest's logic reference into an absolute
	// file:// path or remote URL, verifying the artifact is reachable
	ResolveLogic func(logic string) (string, error)
}

// ScanError records one per-entry discovery failure
type ScanError struct {
	Identifier string `json:"identifier"`
	Message    string `json:"message"`
}

// ScanResult aggregates the outcome of one discovery run
type ScanResult struct {
	Discovered int         `json:"discovered"`
	New        []string    `json:"new"`
	Updated    []string    `json:"updated"`
	Errors     []ScanError `json:"errors"`
}
