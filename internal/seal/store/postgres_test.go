package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodian/internal/seal/models"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
)

var sealRowColumns = []string{
	"id", "number", "status", "election_id", "asset_id", "created_by", "applied_by",
	"applied_at", "close_reason", "version", "created_at", "updated_at",
}

func TestPostgresCreateDuplicateNumber(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	seal, err := models.NewSeal(id.SealID(uuid.New()), "SEAL-001", id.UserID(uuid.New()), time.Now())
	require.NoError(t, err)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO seals")).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err = NewPostgres(db).Create(context.Background(), seal)
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListByAsset(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	assetID := id.AssetID(uuid.New())
	now := time.Now().UTC()
	rows := sqlmock.NewRows(sealRowColumns).
		AddRow(uuid.NewString(), "SEAL-001", "broken", uuid.NewString(), assetID.String(), uuid.NewString(),
			uuid.NewString(), now.Add(-time.Hour), "opened at poll site", 2, now.Add(-2*time.Hour), now).
		AddRow(uuid.NewString(), "SEAL-002", "applied", uuid.NewString(), assetID.String(), uuid.NewString(),
			uuid.NewString(), now, "", 1, now.Add(-2*time.Hour), now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM seals WHERE asset_id = $1")).
		WithArgs(assetID.String()).
		WillReturnRows(rows)

	seals, err := NewPostgres(db).ListByAsset(context.Background(), assetID)
	require.NoError(t, err)
	require.Len(t, seals, 2)
	assert.Equal(t, models.StatusBroken, seals[0].Status)
	assert.Equal(t, "opened at poll site", seals[0].CloseReason)
	require.NotNil(t, seals[1].AssetID)
	assert.Equal(t, assetID, *seals[1].AssetID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
