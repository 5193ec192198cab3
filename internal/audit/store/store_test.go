package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodian/internal/audit/models"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
)

func newSession(t *testing.T) *models.Session {
	t.Helper()
	session, err := models.NewSession(id.AuditSessionID(uuid.New()), id.UserID(uuid.New()), "WH-NORTH", time.Now().UTC())
	require.NoError(t, err)
	return session
}

func TestInMemoryUpdateIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	session := newSession(t)
	require.NoError(t, s.Create(ctx, session))

	first, err := s.FindByID(ctx, session.ID)
	require.NoError(t, err)
	second, err := s.FindByID(ctx, session.ID)
	require.NoError(t, err)

	_, _, err = first.RecordScan("TAG-1", "", nil, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, first))
	assert.Equal(t, 1, first.Version)

	assert.ErrorIs(t, s.Update(ctx, second), sentinel.ErrConflict)

	stored, err := s.FindByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Scans, 1)
	assert.Len(t, stored.Discrepancies, 1)

	stored.Scans[0].Barcode = "mutated"
	again, err := s.FindByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "TAG-1", again.Scans[0].Barcode)
}

func TestInMemoryMissingSession(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.FindByID(context.Background(), id.AuditSessionID(uuid.New()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.ErrorIs(t, s.Update(context.Background(), newSession(t)), sentinel.ErrNotFound)
}

func TestPostgresDecodesDiscrepancies(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	session := newSession(t)
	_, _, err = session.RecordScan("TAG-404", "DOCK-2", nil, session.CreatedAt)
	require.NoError(t, err)
	scans, err := json.Marshal(session.Scans)
	require.NoError(t, err)
	discrepancies, err := json.Marshal(session.Discrepancies)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_sessions WHERE id = $1")).
		WithArgs(session.ID.String()).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "auditor_id", "location", "status", "scans", "discrepancies", "approved_by",
			"version", "created_at", "updated_at", "completed_at",
		}).AddRow(session.ID.String(), session.AuditorID.String(), "WH-NORTH", "discrepancies_found",
			scans, discrepancies, nil, 3, session.CreatedAt, session.UpdatedAt, nil))

	got, err := s.FindByID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDiscrepanciesFound, got.Status)
	require.Len(t, got.Discrepancies, 1)
	assert.Nil(t, got.Discrepancies[0].AssetID)
	assert.Equal(t, id.Location("DOCK-2"), got.Discrepancies[0].ActualLocation)
	assert.Nil(t, got.ApprovedBy)
	assert.Equal(t, 3, got.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStaleUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)
	session := newSession(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE audit_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_sessions WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "auditor_id", "location", "status", "scans", "discrepancies", "approved_by",
			"version", "created_at", "updated_at", "completed_at",
		}).AddRow(session.ID.String(), session.AuditorID.String(), "WH-NORTH", "scanning",
			[]byte("[]"), []byte("[]"), nil, 5, session.CreatedAt, session.UpdatedAt, nil))

	assert.ErrorIs(t, s.Update(context.Background(), session), sentinel.ErrConflict)
	assert.Equal(t, 0, session.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
