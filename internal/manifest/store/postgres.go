package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"custodian/internal/manifest/models"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/platform/tx"
)

// PostgresStore persists manifests with their items embedded as JSONB; the
// manifest is always loaded and written whole.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const manifestColumns = `id, election_id, from_location, to_location, status, items, version,
	created_by, updated_by, created_at, updated_at, packed_at, completed_at`

func (s *PostgresStore) Create(ctx context.Context, m *models.Manifest) error {
	items, err := marshalItems(m.Items)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO manifests (` + manifestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		m.ID, m.ElectionID, string(m.From), string(m.To), string(m.Status), items, m.Version,
		m.CreatedBy, m.UpdatedBy, m.CreatedAt, m.UpdatedAt, m.PackedAt, m.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert manifest: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, m *models.Manifest) error {
	items, err := marshalItems(m.Items)
	if err != nil {
		return err
	}
	query := `
		UPDATE manifests
		SET status = $3, items = $4, updated_by = $5, updated_at = $6,
			packed_at = $7, completed_at = $8, version = version + 1
		WHERE id = $1 AND version = $2
	`
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		m.ID, m.Version, string(m.Status), items, m.UpdatedBy, m.UpdatedAt, m.PackedAt, m.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update manifest: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update manifest rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.FindByID(ctx, m.ID); err != nil {
			return err
		}
		return sentinel.ErrConflict
	}
	m.Version++
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, manifestID id.ManifestID) (*models.Manifest, error) {
	var (
		m        models.Manifest
		from, to string
		status   string
		items    []byte
	)
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+manifestColumns+` FROM manifests WHERE id = $1`, manifestID,
	).Scan(&m.ID, &m.ElectionID, &from, &to, &status, &items, &m.Version,
		&m.CreatedBy, &m.UpdatedBy, &m.CreatedAt, &m.UpdatedAt, &m.PackedAt, &m.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find manifest: %w", err)
	}
	if err := json.Unmarshal(items, &m.Items); err != nil {
		return nil, fmt.Errorf("unmarshal manifest items: %w", err)
	}
	m.From = id.Location(from)
	m.To = id.Location(to)
	m.Status = models.Status(status)
	return &m, nil
}

func marshalItems(items []models.Item) ([]byte, error) {
	if items == nil {
		items = []models.Item{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest items: %w", err)
	}
	return b, nil
}
