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

	"custodian/internal/kit/models"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

var kitRowColumns = []string{
	"id", "name", "type", "status", "poll_site", "asset_ids", "manifest_id", "version",
	"created_by", "updated_by", "created_at", "updated_at",
}

func TestPostgresFindOpenByAssetDecodesMembers(t *testing.T) {
	s, mock := newMockStore(t)
	kitID := id.KitID(uuid.New())
	assetID := id.AssetID(uuid.New())
	members, err := json.Marshal([]id.AssetID{assetID})
	require.NoError(t, err)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("asset_ids @> $1::jsonb")).
		WithArgs(members).
		WillReturnRows(sqlmock.NewRows(kitRowColumns).AddRow(
			kitID.String(), "precinct 4", "standard", "ready", "PS-0004", members, nil, 2,
			uuid.NewString(), uuid.NewString(), now, now,
		))

	k, err := s.FindOpenByAsset(context.Background(), assetID)
	require.NoError(t, err)
	assert.Equal(t, kitID, k.ID)
	assert.Equal(t, models.StatusReady, k.Status)
	assert.Equal(t, []id.AssetID{assetID}, k.AssetIDs)
	assert.Equal(t, id.Location("PS-0004"), k.PollSite)
	assert.Nil(t, k.ManifestID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateStaleVersion(t *testing.T) {
	s, mock := newMockStore(t)
	k, err := models.NewKit(id.KitID(uuid.New()), "precinct 9", "", id.UserID(uuid.New()), time.Now())
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE kits")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM kits WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows(kitRowColumns).AddRow(
			k.ID.String(), k.Name, k.Type, "assembling", "", []byte("[]"), nil, 1,
			k.CreatedBy.String(), k.UpdatedBy.String(), k.CreatedAt, k.UpdatedAt,
		))

	err = s.Update(context.Background(), k)
	assert.ErrorIs(t, err, sentinel.ErrConflict)
	assert.Equal(t, 0, k.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
