package gateway

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Attachment is one externally visible audit record appended by a plugin
type Attachment struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenantId"`
	StreamID   *int64          `json:"streamId"`
	Title      string          `json:"title"`
	Summary    *string         `json:"summary"`
	URL        string          `json:"url"`
	Data       json.RawMessage `json:"data"`
	Visibility string          `json:"visibility"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// VisibilityExternal marks records visible outside the host. Gateway
// attachments are never written with the internal-only flag used
// elsewhere in the product.
const VisibilityExternal = "external"

// Store persists isolated plugin storage and log attachments, partitioned
// per tenant and per plugin provider
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore opens (or creates) the gateway database
func NewStore(dbPath string, logger zerolog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL for concurrent gateway calls
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "gateway-store").Logger(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates database tables
func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS plugin_storage (
			tenant_id TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (tenant_id, provider_id)
		);

		CREATE TABLE IF NOT EXISTS attachments (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			stream_id INTEGER,
			title TEXT NOT NULL,
			summary TEXT,
			url TEXT NOT NULL,
			data TEXT NOT NULL,
			visibility TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_attachments_tenant ON attachments(tenant_id);
		CREATE INDEX IF NOT EXISTS idx_attachments_stream ON attachments(stream_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetIsolated returns the stored blob for (tenant, provider), or nil when
// never set
func (s *Store) GetIsolated(tenantID, providerID string) (json.RawMessage, error) {
	var data string
	err := s.db.QueryRow(
		"SELECT data FROM plugin_storage WHERE tenant_id = ? AND provider_id = ?",
		tenantID, providerID,
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin storage: %w", err)
	}

	return json.RawMessage(data), nil
}

// SetIsolated upserts the blob for (tenant, provider), last write wins
func (s *Store) SetIsolated(tenantID, providerID string, data json.RawMessage) error {
	_, err := s.db.Exec(`
		INSERT INTO plugin_storage (tenant_id, provider_id, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id, provider_id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`,
		tenantID, providerID, string(data), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write plugin storage: %w", err)
	}
	return nil
}

// DeleteIsolated removes the blob for (tenant, provider); idempotent
func (s *Store) DeleteIsolated(tenantID, providerID string) error {
	_, err := s.db.Exec(
		"DELETE FROM plugin_storage WHERE tenant_id = ? AND provider_id = ?",
		tenantID, providerID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete plugin storage: %w", err)
	}
	return nil
}

// AppendAttachment records one externally visible audit entry
func (s *Store) AppendAttachment(a Attachment) (*Attachment, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.Visibility = VisibilityExternal
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.Data == nil {
		a.Data = json.RawMessage("null")
	}

	_, err := s.db.Exec(`
		INSERT INTO attachments (id, tenant_id, stream_id, title, summary, url, data, visibility, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.StreamID, a.Title, a.Summary, a.URL, string(a.Data), a.Visibility, a.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append attachment: %w", err)
	}

	s.logger.Debug().
		Str("tenantId", a.TenantID).
		Str("title", a.Title).
		Msg("Attachment recorded")

	return &a, nil
}

// ListAttachments returns attachments for a tenant, newest first
func (s *Store) ListAttachments(tenantID string, limit int) ([]Attachment, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT id, tenant_id, stream_id, title, summary, url, data, visibility, created_at
		FROM attachments WHERE tenant_id = ?
		ORDER BY created_at DESC LIMIT ?`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var attachments []Attachment
	for rows.Next() {
		var a Attachment
		var data string
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.TenantID, &a.StreamID, &a.Title, &a.Summary, &a.URL, &data, &a.Visibility, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		a.Data = json.RawMessage(data)
		a.CreatedAt = time.Unix(createdAt, 0)
		attachments = append(attachments, a)
	}

	return attachments, rows.Err()
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
