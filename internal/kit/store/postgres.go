package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"custodian/internal/kit/models"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/platform/tx"
)

// PostgresStore persists kits in PostgreSQL. Member ids live in a JSONB
// array so membership checks use the @> containment operator.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const kitColumns = `id, name, type, status, poll_site, asset_ids, manifest_id, version,
	created_by, updated_by, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, kit *models.Kit) error {
	members, err := json.Marshal(kit.AssetIDs)
	if err != nil {
		return fmt.Errorf("marshal kit members: %w", err)
	}
	query := `
		INSERT INTO kits (` + kitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		kit.ID, kit.Name, kit.Type, string(kit.Status), string(kit.PollSite), members,
		kit.ManifestID, kit.Version, kit.CreatedBy, kit.UpdatedBy, kit.CreatedAt, kit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert kit: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, kit *models.Kit) error {
	members, err := json.Marshal(kit.AssetIDs)
	if err != nil {
		return fmt.Errorf("marshal kit members: %w", err)
	}
	query := `
		UPDATE kits
		SET status = $3, poll_site = $4, asset_ids = $5, manifest_id = $6,
			updated_by = $7, updated_at = $8, version = version + 1
		WHERE id = $1 AND version = $2
	`
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		kit.ID, kit.Version, string(kit.Status), string(kit.PollSite), members,
		kit.ManifestID, kit.UpdatedBy, kit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update kit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update kit rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.FindByID(ctx, kit.ID); err != nil {
			return err
		}
		return sentinel.ErrConflict
	}
	kit.Version++
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, kitID id.KitID) (*models.Kit, error) {
	return s.findOne(ctx, `SELECT `+kitColumns+` FROM kits WHERE id = $1`, kitID)
}

func (s *PostgresStore) FindOpenByAsset(ctx context.Context, assetID id.AssetID) (*models.Kit, error) {
	needle, err := json.Marshal([]id.AssetID{assetID})
	if err != nil {
		return nil, fmt.Errorf("marshal asset id: %w", err)
	}
	return s.findOne(ctx, `SELECT `+kitColumns+` FROM kits
		WHERE status <> 'retired' AND asset_ids @> $1::jsonb
		LIMIT 1`, needle)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Kit, error) {
	var (
		k        models.Kit
		status   string
		pollSite string
		members  []byte
	)
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, arg).Scan(
		&k.ID, &k.Name, &k.Type, &status, &pollSite, &members, &k.ManifestID, &k.Version,
		&k.CreatedBy, &k.UpdatedBy, &k.CreatedAt, &k.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find kit: %w", err)
	}
	if err := json.Unmarshal(members, &k.AssetIDs); err != nil {
		return nil, fmt.Errorf("unmarshal kit members: %w", err)
	}
	if k.AssetIDs == nil {
		k.AssetIDs = []id.AssetID{}
	}
	k.Status = models.Status(status)
	k.PollSite = id.Location(pollSite)
	return &k, nil
}
