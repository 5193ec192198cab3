package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"custodian/internal/audit/models"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/platform/tx"
)

// PostgresStore persists audit sessions with scans and discrepancies as JSONB
// documents on the session row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, auditor_id, location, status, scans, discrepancies, approved_by,
	version, created_at, updated_at, completed_at`

func (s *PostgresStore) Create(ctx context.Context, session *models.Session) error {
	scans, discrepancies, err := marshalSession(session)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO audit_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		session.ID, session.AuditorID, string(session.Location), string(session.Status),
		scans, discrepancies, session.ApprovedBy, session.Version,
		session.CreatedAt, session.UpdatedAt, session.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, session *models.Session) error {
	scans, discrepancies, err := marshalSession(session)
	if err != nil {
		return err
	}
	query := `
		UPDATE audit_sessions
		SET status = $3, scans = $4, discrepancies = $5, approved_by = $6,
			updated_at = $7, completed_at = $8, version = version + 1
		WHERE id = $1 AND version = $2
	`
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		session.ID, session.Version, string(session.Status), scans, discrepancies,
		session.ApprovedBy, session.UpdatedAt, session.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update audit session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update audit session rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.FindByID(ctx, session.ID); err != nil {
			return err
		}
		return sentinel.ErrConflict
	}
	session.Version++
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, sessionID id.AuditSessionID) (*models.Session, error) {
	var (
		session              models.Session
		location, status     string
		scans, discrepancies   []byte
	)
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM audit_sessions WHERE id = $1`, sessionID,
	).Scan(&session.ID, &session.AuditorID, &location, &status, &scans, &discrepancies,
		&session.ApprovedBy, &session.Version, &session.CreatedAt, &session.UpdatedAt, &session.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find audit session: %w", err)
	}
	if err := json.Unmarshal(scans, &session.Scans); err != nil {
		return nil, fmt.Errorf("unmarshal audit scans: %w", err)
	}
	if err := json.Unmarshal(discrepancies, &session.Discrepancies); err != nil {
		return nil, fmt.Errorf("unmarshal audit discrepancies: %w", err)
	}
	session.Location = id.Location(location)
	session.Status = models.Status(status)
	return &session, nil
}

func marshalSession(session *models.Session) (scans, discrepancies []byte, err error) {
	s := session.Scans
	if s == nil {
		s = []models.Scan{}
	}
	d := session.Discrepancies
	if d == nil {
		d = []models.Discrepancy{}
	}
	if scans, err = json.Marshal(s); err != nil {
		return nil, nil, fmt.Errorf("marshal audit scans: %w", err)
	}
	if discrepancies, err = json.Marshal(d); err != nil {
		return nil, nil, fmt.Errorf("marshal audit discrepancies: %w", err)
	}
	return scans, discrepancies, nil
}
