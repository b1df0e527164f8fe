package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Scanner runs discovery over the configured sources and upserts results
// into the registry. Per-entry failures are collected, never fatal: one
// bad plugin must not abort the run.
type Scanner struct {
	sources  []Source
	loader   *ManifestLoader
	registry *Registry
	logger   zerolog.Logger
	now      func() time.Time
}

// NewScanner creates a scanner over the given sources
func NewScanner(sources []Source, loader *ManifestLoader, registry *Registry, logger zerolog.Logger) *Scanner {
	return &Scanner{
		sources:  sources,
		loader:   loader,
		registry: registry,
		logger:   logger.With().Str("component", "catalog-scanner").Logger(),
		now:      time.Now,
	}
}

// Scan performs one discovery run
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	result := &ScanResult{
		New:     []string{},
		Updated: []string{},
		Errors:  []ScanError{},
	}

	for _, source := range s.sources {
		candidates, err := source.Candidates(ctx)
		if err != nil {
			return nil, fmt.Errorf("source enumeration failed: %w", err)
		}

		for _, candidate := range candidates {
			if candidate.ManifestData == nil {
				// folder without a manifest, not a plugin
				continue
			}

			result.Discovered++

			entry, err := s.ingest(candidate)
			if err != nil {
				s.logger.Warn().
					Err(err).
					Str("identifier", candidate.Identifier).
					Msg("Skipping plugin candidate")
				result.Errors = append(result.Errors, ScanError{
					Identifier: candidate.Identifier,
					Message:    err.Error(),
				})
				continue
			}

			if created := s.registry.Upsert(entry, s.now()); created {
				result.New = append(result.New, entry.ID)
			} else {
				result.Updated = append(result.Updated, entry.ID)
			}
		}
	}

	s.logger.Info().
		Int("discovered", result.Discovered).
		Int("new", len(result.New)).
		Int("updated", len(result.Updated)).
		Int("errors", len(result.Errors)).
		Msg("Catalog scan completed")

	return result, nil
}

// ingest validates one candidate and builds its catalog entry
func (s *Scanner) ingest(candidate Candidate) (*Entry, error) {
	manifest, err := s.loader.Parse(candidate.ManifestData)
	if err != nil {
		return nil, err
	}

	logicPath, err := candidate.ResolveLogic(manifest.Logic)
	if err != nil {
		return nil, err
	}

	id, err := ContentHash(manifest)
	if err != nil {
		return nil, err
	}

	return &Entry{
		ID:         id,
		Name:       manifest.Name,
		Version:    manifest.Version,
		ProviderID: ProviderSlug(manifest.Name, manifest.Author),
		Author:     manifest.Author,
		LogicPath:  logicPath,
		Manifest:   *manifest,
		SourceURL:  candidate.SourceURL,
	}, nil
}
