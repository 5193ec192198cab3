package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"custodian/internal/seal/models"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists seals in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sealColumns = `id, number, status, election_id, asset_id, created_by, applied_by,
	applied_at, close_reason, version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, seal *models.Seal) error {
	query := `
		INSERT INTO seals (` + sealColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		seal.ID, seal.Number, string(seal.Status), seal.ElectionID, seal.AssetID, seal.CreatedBy,
		seal.AppliedBy, seal.AppliedAt, seal.CloseReason, seal.Version, seal.CreatedAt, seal.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert seal: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, seal *models.Seal) error {
	query := `
		UPDATE seals
		SET status = $3, election_id = $4, asset_id = $5, applied_by = $6, applied_at = $7,
			close_reason = $8, updated_at = $9, version = version + 1
		WHERE id = $1 AND version = $2
	`
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		seal.ID, seal.Version, string(seal.Status), seal.ElectionID, seal.AssetID,
		seal.AppliedBy, seal.AppliedAt, seal.CloseReason, seal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update seal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update seal rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.FindByID(ctx, seal.ID); err != nil {
			return err
		}
		return sentinel.ErrConflict
	}
	seal.Version++
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, sealID id.SealID) (*models.Seal, error) {
	return s.findOne(ctx, `SELECT `+sealColumns+` FROM seals WHERE id = $1`, sealID)
}

func (s *PostgresStore) FindByNumber(ctx context.Context, number string) (*models.Seal, error) {
	return s.findOne(ctx, `SELECT `+sealColumns+` FROM seals WHERE number = $1`, number)
}

func (s *PostgresStore) ListByAsset(ctx context.Context, assetID id.AssetID) ([]*models.Seal, error) {
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		`SELECT `+sealColumns+` FROM seals WHERE asset_id = $1 ORDER BY COALESCE(applied_at, created_at)`, assetID)
	if err != nil {
		return nil, fmt.Errorf("list seals by asset: %w", err)
	}
	defer rows.Close()

	var out []*models.Seal
	for rows.Next() {
		seal, err := scanSeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan seal: %w", err)
		}
		out = append(out, seal)
	}
	return out, rows.Err()
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Seal, error) {
	seal, err := scanSeal(tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find seal: %w", err)
	}
	return seal, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSeal(row scanner) (*models.Seal, error) {
	var (
		seal   models.Seal
		status string
	)
	err := row.Scan(&seal.ID, &seal.Number, &status, &seal.ElectionID, &seal.AssetID, &seal.CreatedBy,
		&seal.AppliedBy, &seal.AppliedAt, &seal.CloseReason, &seal.Version, &seal.CreatedAt, &seal.UpdatedAt)
	if err != nil {
		return nil, err
	}
	seal.Status = models.Status(status)
	return &seal, nil
}
