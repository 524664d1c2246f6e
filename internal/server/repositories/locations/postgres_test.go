package locations

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gpstracker/internal/server/models"
)

const (
	upsertUserQ     = `(?s)^INSERT\s+INTO\s+users\s*\(username,\s*first_seen_at,\s*last_seen_at\).*ON\s+CONFLICT`
	insertLocationQ = `(?s)^INSERT\s+INTO\s+locations\s*\(id,\s*username,\s*latitude,\s*longitude,\s*captured_at,\s*accuracy\)\s*VALUES`
	recentQ         = `(?s)^SELECT\s+id,.*FROM\s+\(.*ORDER\s+BY\s+captured_at\s+DESC.*LIMIT\s+\$2.*\)\s+recent\s+ORDER\s+BY\s+captured_at\s+ASC`
	allQ            = `(?s)^SELECT\s+id,.*FROM\s+locations\s+WHERE\s+username\s*=\s*\$1\s+ORDER\s+BY\s+captured_at\s+ASC`
	existsQ         = `(?s)^SELECT\s+EXISTS\s*\(SELECT\s+1\s+FROM\s+users\s+WHERE\s+username\s*=\s*\$1\)`
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	repo := NewPostgresRepository(db)
	repo.newID = func() string { return "loc-1" }
	return repo, mock, db
}

func locationColumns() []string {
	return []string{"id", "username", "latitude", "longitude", "captured_at", "accuracy"}
}

func TestPostgresAppend_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(upsertUserQ).WithArgs("alice", t0).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertLocationQ).
		WithArgs("loc-1", "alice", 0.0, 0.0, t0, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.Append(context.Background(), &models.Location{Username: "alice", CapturedAt: t0})
	require.NoError(t, err)
	assert.Equal(t, "loc-1", got.ID)
	assert.Equal(t, 0.0, got.Latitude)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppend_WithAccuracy(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	acc := 4.5
	mock.ExpectBegin()
	mock.ExpectExec(upsertUserQ).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertLocationQ).
		WithArgs("loc-1", "bob", 10.0, 20.0, t0, 4.5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := repo.Append(context.Background(), &models.Location{
		Username: "bob", Latitude: 10, Longitude: 20, CapturedAt: t0, Accuracy: &acc,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppend_InsertFailsRollsBack(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(upsertUserQ).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertLocationQ).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.Append(context.Background(), &models.Location{Username: "alice", CapturedAt: t0})
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*disk full`), err.Error())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecent(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(locationColumns()).
		AddRow("a", "alice", 1.0, 2.0, t0, nil).
		AddRow("b", "alice", 3.0, 4.0, t0.Add(time.Second), 7.5)
	mock.ExpectQuery(recentQ).WithArgs("alice", 50).WillReturnRows(rows)

	got, err := repo.Recent(context.Background(), "alice", 50)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Nil(t, got[0].Accuracy)
	require.NotNil(t, got[1].Accuracy)
	assert.Equal(t, 7.5, *got[1].Accuracy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecent_EmptyIsNotNil(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(recentQ).WithArgs("ghost", 50).WillReturnRows(sqlmock.NewRows(locationColumns()))

	got, err := repo.Recent(context.Background(), "ghost", 50)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPostgresAll_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(allQ).WithArgs("alice").WillReturnError(errors.New("conn reset"))

	_, err := repo.All(context.Background(), "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error: conn reset")
}

func TestPostgresExists(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(existsQ).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(existsQ).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := repo.Exists(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}
