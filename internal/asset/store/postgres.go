package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"custodian/internal/asset/models"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/platform/tx"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore persists assets in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed asset store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const assetColumns = `id, serial, type, tag, status, condition, location, facility_id,
	election_id, kit_id, manifest_id, version, created_by, updated_by, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, asset *models.Asset) error {
	query := `
		INSERT INTO assets (` + assetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		asset.ID, asset.Serial, asset.Type, nullString(asset.Tag), string(asset.Status),
		asset.Condition, string(asset.Location), asset.FacilityID, asset.ElectionID,
		asset.KitID, asset.ManifestID, asset.Version, asset.CreatedBy, asset.UpdatedBy,
		asset.CreatedAt, asset.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// Update writes every mutable column guarded by the caller's version.
func (s *PostgresStore) Update(ctx context.Context, asset *models.Asset) error {
	query := `
		UPDATE assets
		SET status = $3, condition = $4, location = $5, facility_id = $6, election_id = $7,
			kit_id = $8, manifest_id = $9, updated_by = $10, updated_at = $11,
			version = version + 1
		WHERE id = $1 AND version = $2
	`
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		asset.ID, asset.Version, string(asset.Status), asset.Condition, string(asset.Location),
		asset.FacilityID, asset.ElectionID, asset.KitID, asset.ManifestID,
		asset.UpdatedBy, asset.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update asset rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.FindByID(ctx, asset.ID); err != nil {
			return err
		}
		return sentinel.ErrConflict
	}
	asset.Version++
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, assetID id.AssetID) (*models.Asset, error) {
	return s.findOne(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, assetID)
}

func (s *PostgresStore) FindBySerial(ctx context.Context, serial string) (*models.Asset, error) {
	return s.findOne(ctx, `SELECT `+assetColumns+` FROM assets WHERE serial = $1`, serial)
}

func (s *PostgresStore) FindByTag(ctx context.Context, tag string) (*models.Asset, error) {
	return s.findOne(ctx, `SELECT `+assetColumns+` FROM assets WHERE tag = $1`, tag)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Asset, error) {
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, arg)
	asset, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find asset: %w", err)
	}
	return asset, nil
}

func scanAsset(row *sql.Row) (*models.Asset, error) {
	var (
		a        models.Asset
		tag      sql.NullString
		status   string
		location string
	)
	// database/sql allocates the optional ID pointers for non-NULL columns.
	err := row.Scan(&a.ID, &a.Serial, &a.Type, &tag, &status, &a.Condition, &location,
		&a.FacilityID, &a.ElectionID, &a.KitID, &a.ManifestID, &a.Version, &a.CreatedBy,
		&a.UpdatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Tag = tag.String
	a.Status = models.Status(status)
	a.Location = id.Location(location)
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
