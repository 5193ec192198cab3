package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"custodian/internal/custody/models"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresEventStore appends custody events. There is no update path.
type PostgresEventStore struct {
	db *sql.DB
}

func NewPostgresEvents(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

const eventColumns = `id, election_id, asset_id, from_party, to_party, seal_number, from_org,
	to_org, manifest_id, notes, created_by, occurred_at`

func (s *PostgresEventStore) Append(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO custody_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		e.ID, e.ElectionID, e.AssetID, e.FromParty, e.ToParty, e.SealNumber, e.FromOrg,
		e.ToOrg, e.ManifestID, e.Notes, e.CreatedBy, e.OccurredAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert custody event: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) FindByID(ctx context.Context, eventID id.CustodyEventID) (*models.Event, error) {
	var e models.Event
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM custody_events WHERE id = $1`, eventID,
	).Scan(eventDest(&e)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find custody event: %w", err)
	}
	return &e, nil
}

func (s *PostgresEventStore) ListByAsset(ctx context.Context, assetID id.AssetID) ([]*models.Event, error) {
	return s.list(ctx, `SELECT `+eventColumns+` FROM custody_events
		WHERE asset_id = $1 ORDER BY occurred_at, id`, assetID)
}

func (s *PostgresEventStore) ListByManifest(ctx context.Context, manifestID id.ManifestID) ([]*models.Event, error) {
	return s.list(ctx, `SELECT `+eventColumns+` FROM custody_events
		WHERE manifest_id = $1 ORDER BY occurred_at, id`, manifestID)
}

func (s *PostgresEventStore) list(ctx context.Context, query string, arg any) ([]*models.Event, error) {
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list custody events: %w", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(eventDest(&e)...); err != nil {
			return nil, fmt.Errorf("scan custody event: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func eventDest(e *models.Event) []any {
	return []any{&e.ID, &e.ElectionID, &e.AssetID, &e.FromParty, &e.ToParty, &e.SealNumber,
		&e.FromOrg, &e.ToOrg, &e.ManifestID, &e.Notes, &e.CreatedBy, &e.OccurredAt}
}

// PostgresFormStore persists custody forms with their signatures as JSONB.
type PostgresFormStore struct {
	db *sql.DB
}

func NewPostgresForms(db *sql.DB) *PostgresFormStore {
	return &PostgresFormStore{db: db}
}

const formColumns = `id, manifest_id, url, required_signatures, status, expires_at, access_count,
	closed_by, scanned_ref, signatures, version, created_by, created_at, updated_at`

func (s *PostgresFormStore) Create(ctx context.Context, f *models.Form) error {
	sigs, err := marshalSignatures(f.Signatures)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO custody_forms (` + formColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		f.ID, f.ManifestID, f.URL, f.RequiredSignatures, string(f.Status), f.ExpiresAt, f.AccessCount,
		f.ClosedBy, f.ScannedRef, sigs, f.Version, f.CreatedBy, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert custody form: %w", err)
	}
	return nil
}

func (s *PostgresFormStore) Update(ctx context.Context, f *models.Form) error {
	sigs, err := marshalSignatures(f.Signatures)
	if err != nil {
		return err
	}
	query := `
		UPDATE custody_forms
		SET url = $3, status = $4, access_count = $5, closed_by = $6, scanned_ref = $7,
			signatures = $8, updated_at = $9, version = version + 1
		WHERE id = $1 AND version = $2
	`
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		f.ID, f.Version, f.URL, string(f.Status), f.AccessCount, f.ClosedBy, f.ScannedRef, sigs, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update custody form: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update custody form rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.FindByID(ctx, f.ID); err != nil {
			return err
		}
		return sentinel.ErrConflict
	}
	f.Version++
	return nil
}

func (s *PostgresFormStore) FindByID(ctx context.Context, formID id.FormID) (*models.Form, error) {
	return s.findOne(ctx, `SELECT `+formColumns+` FROM custody_forms WHERE id = $1`, formID)
}

func (s *PostgresFormStore) FindByManifest(ctx context.Context, manifestID id.ManifestID) (*models.Form, error) {
	return s.findOne(ctx, `SELECT `+formColumns+` FROM custody_forms WHERE manifest_id = $1`, manifestID)
}

func (s *PostgresFormStore) findOne(ctx context.Context, query string, arg any) (*models.Form, error) {
	var (
		f      models.Form
		status string
		sigs   []byte
	)
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, arg).Scan(
		&f.ID, &f.ManifestID, &f.URL, &f.RequiredSignatures, &status, &f.ExpiresAt, &f.AccessCount,
		&f.ClosedBy, &f.ScannedRef, &sigs, &f.Version, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find custody form: %w", err)
	}
	if err := json.Unmarshal(sigs, &f.Signatures); err != nil {
		return nil, fmt.Errorf("unmarshal signatures: %w", err)
	}
	if f.Signatures == nil {
		f.Signatures = []models.Signature{}
	}
	f.Status = models.FormStatus(status)
	return &f, nil
}

func marshalSignatures(sigs []models.Signature) ([]byte, error) {
	if sigs == nil {
		sigs = []models.Signature{}
	}
	b, err := json.Marshal(sigs)
	if err != nil {
		return nil, fmt.Errorf("marshal signatures: %w", err)
	}
	return b, nil
}
