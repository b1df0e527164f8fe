package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ManifestFileName is the manifest file looked up in every candidate folder
const ManifestFileName = "plugin.json"

// Source enumerates plugin candidates from one location
type Source interface {
	// Candidates returns every potential plugin the source can see.
	// Candidates without a manifest carry nil ManifestData and are
	// skipped by the scanner.
	Candidates(ctx context.Context) ([]Candidate, error)
}

// DirSource discovers plugins from subfolders of a local directory
type DirSource struct {
	dir    string
	logger zerolog.Logger
}

// NewDirSource creates a source over a local plugin directory
func NewDirSource(dir string, logger zerolog.Logger) *DirSource {
	return &DirSource{
		dir:    dir,
		logger: logger.With().Str("component", "catalog-dir-source").Logger(),
	}
}

// Candidates lists every subfolder as a candidate
func (s *DirSource) Candidates(ctx context.Context) ([]Candidate, error) {
	info, err := os.Stat(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug().Str("dir", s.dir).Msg("Plugin directory does not exist, skipping")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat directory %s: %w", s.dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", s.dir)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", s.dir, err)
	}

	var candidates []Candidate
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginDir := filepath.Join(s.dir, entry.Name())
		manifestPath := filepath.Join(pluginDir, ManifestFileName)

		data, err := os.ReadFile(manifestPath)
		if err != nil {
			if os.IsNotExist(err) {
				// not every folder is a plugin
				data = nil
			} else {
				return nil, fmt.Errorf("failed to read %s: %w", manifestPath, err)
			}
		}

		candidates = append(candidates, Candidate{
			Identifier:   entry.Name(),
			ManifestData: data,
			SourceURL:    "file://" + pluginDir,
			ResolveLogic: s.logicResolver(pluginDir),
		})
	}

	return candidates, nil
}

// logicResolver resolves a logic reference relative to the plugin folder
// into an absolute file:// path, confirming the artifact exists
func (s *DirSource) logicResolver(pluginDir string) func(string) (string, error) {
	return func(logic string) (string, error) {
		path := filepath.Join(pluginDir, logic)
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve logic path %s: %w", path, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("logic artifact not reachable: %s", abs)
		}
		return "file://" + abs, nil
	}
}

// repoEntry is one item of a remote repository directory listing
type repoEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RepoSource discovers plugins from a remote repository's top-level
// directory listing
type RepoSource struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewRepoSource creates a source over a remote plugin repository
func NewRepoSource(baseURL string, logger zerolog.Logger) *RepoSource {
	return &RepoSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With().Str("component", "catalog-repo-source").Logger(),
	}
}

// Candidates fetches the repository listing and each entry's manifest
func (s *RepoSource) Candidates(ctx context.Context) ([]Candidate, error) {
	listing, err := s.fetchListing(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list repository %s: %w", s.baseURL, err)
	}

	var candidates []Candidate
	for _, entry := range listing {
		if entry.Type != "dir" {
			continue
		}

		pluginURL := s.baseURL + "/" + url.PathEscape(entry.Name)
		manifestURL := pluginURL + "/" + ManifestFileName

		data, err := s.fetchOptional(ctx, manifestURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", manifestURL, err)
		}

		candidates = append(candidates, Candidate{
			Identifier:   entry.Name,
			ManifestData: data,
			SourceURL:    pluginURL,
			ResolveLogic: s.logicResolver(ctx, pluginURL),
		})
	}

	return candidates, nil
}

func (s *RepoSource) fetchListing(ctx context.Context) ([]repoEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var listing []repoEntry
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("failed to parse listing: %w", err)
	}

	return listing, nil
}

// fetchOptional returns nil data for 404 so missing manifests are skipped
// silently like empty local folders
func (s *RepoSource) fetchOptional(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// logicResolver resolves a logic reference to a fully qualified URL and
// confirms the artifact answers a HEAD request
func (s *RepoSource) logicResolver(ctx context.Context, pluginURL string) func(string) (string, error) {
	return func(logic string) (string, error) {
		logicURL := pluginURL + "/" + logic

		req, err := http.NewRequestWithContext(ctx, http.MethodHead, logicURL, nil)
		if err != nil {
			return "", err
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return "", fmt.Errorf("logic artifact not reachable: %s: %w", logicURL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("logic artifact not reachable: %s returned status %d", logicURL, resp.StatusCode)
		}

		return logicURL, nil
	}
}
