package repository_test

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leadboard/internal/database"
	"github.com/leadboard/internal/models"
	"github.com/leadboard/internal/repository"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var leadCols = []string{
	"id", "name", "email", "phone", "source", "venture", "ad_name",
	"status_id", "assigned_to", "extra_fields", "created_at", "updated_at",
}

func newMockRepos(t *testing.T) (*repository.Repositories, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return repository.New(database.Wrap(sqlDB, zerolog.Nop())), mock
}

func TestStatusRepo_List(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, color, sort_order FROM statuses ORDER BY sort_order`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "color", "sort_order"}).
			AddRow("new", "New", "#3b82f6", 1).
			AddRow("won", "Won", "#22c55e", 5))

	statuses, err := repos.Status.List(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, models.Status{ID: "new", Name: "New", Color: "#3b82f6", Order: 1}, statuses[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_ListByRole(t *testing.T) {
	repos, mock := newMockRepos(t)
	created := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE role = $1 ORDER BY name`)).
		WithArgs(models.RoleSalesTeam).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "name", "role", "password_hash", "created_at"}).
			AddRow("u-1", "asha", "Asha", models.RoleSalesTeam, "hash", created))

	users, err := repos.User.List(context.Background(), models.RoleSalesTeam)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "asha", users[0].Username)
	assert.Equal(t, created, users[0].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByUsernameMissing(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE username = $1`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "name", "role", "password_hash", "created_at"}))

	user, err := repos.User.GetByUsername(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepo_ListAppliesFilterAndPaging(t *testing.T) {
	repos, mock := newMockRepos(t)
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM leads WHERE status_id = $1 AND assigned_to = $2`)).
		WithArgs("new", "u-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(41))

	mock.ExpectQuery(regexp.QuoteMeta(`FROM leads WHERE status_id = $1 AND assigned_to = $2 ORDER BY created_at DESC NULLS LAST, id ASC LIMIT $3 OFFSET $4`)).
		WithArgs("new", "u-1", 20, 20).
		WillReturnRows(sqlmock.NewRows(leadCols).
			AddRow("L1", "Ravi", "ravi@example.com", "98450", "facebook", "Palm Grove", "Diwali Offer",
				"new", "u-1", []byte(`[{"key":"budget","value":"1 Cr"},{"key":"bhk","value":"3"}]`), created, created).
			AddRow("L2", "Meera", "", "", "", "", "", "new", nil, []byte(`[]`), nil, created))

	leads, total, err := repos.Lead.List(context.Background(), models.LeadFilter{
		StatusID: "new", AssignedTo: "u-1", Page: 2, PageSize: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, 41, total)
	require.Len(t, leads, 2)

	assert.Equal(t, "u-1", leads[0].Assignee())
	assert.Equal(t, models.ExtraFields{{Key: "budget", Value: "1 Cr"}, {Key: "bhk", Value: "3"}}, leads[0].ExtraFields)
	assert.True(t, leads[0].CreatedAt.Equal(created))

	assert.Nil(t, leads[1].AssignedTo)
	assert.True(t, leads[1].CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepo_GetByIDLogsMalformedExtraFields(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	var logs bytes.Buffer
	repos := repository.New(database.Wrap(sqlDB, zerolog.New(&logs)))

	mock.ExpectQuery(regexp.QuoteMeta(`FROM leads WHERE id = $1`)).
		WithArgs("L9").
		WillReturnRows(sqlmock.NewRows(leadCols).
			AddRow("L9", "Kiran", "", "", "", "", "", "new", nil, []byte(`{not json`), nil, nil))

	lead, err := repos.Lead.GetByID(context.Background(), "L9")
	require.NoError(t, err)
	require.NotNil(t, lead)
	assert.Equal(t, "Kiran", lead.Name)
	assert.Empty(t, lead.ExtraFields)
	assert.Contains(t, logs.String(), "Dropped malformed extra_fields")
	assert.Contains(t, logs.String(), `"lead_id":"L9"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepo_ListWithoutFilter(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM leads`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`LIMIT $1 OFFSET $2`)).
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(leadCols))

	leads, total, err := repos.Lead.List(context.Background(), models.LeadFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NotNil(t, leads)
	assert.Empty(t, leads)
}

func TestLeadRepo_UpdateStatus(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE leads SET status_id = $2`)).
		WithArgs("L1", "won").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE leads SET status_id = $2`)).
		WithArgs("missing", "won").
		WillReturnResult(sqlmock.NewResult(0, 0))

	found, err := repos.Lead.UpdateStatus(context.Background(), "L1", "won")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repos.Lead.UpdateStatus(context.Background(), "missing", "won")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepo_BatchInsertUsesCopy(t *testing.T) {
	repos, mock := newMockRepos(t)
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`COPY "leads"`))
	prep.ExpectExec().
		WithArgs("L1", "Ravi", "", "", "", "", "", "new", nil, `[{"key":"budget","value":"1 Cr"}]`, created, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("L2", "Meera", "", "", "", "", "", "new", "u-1", `[]`, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	assignee := "u-1"
	n, err := repos.Lead.BatchInsert(context.Background(), []*models.Lead{
		{ID: "L1", Name: "Ravi", StatusID: "new", CreatedAt: models.At(created),
			ExtraFields: models.ExtraFields{{Key: "budget", Value: "1 Cr"}}},
		{ID: "L2", Name: "Meera", StatusID: "new", AssignedTo: &assignee},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepo_BatchInsertRollsBackOnRowError(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`COPY "leads"`))
	prep.ExpectExec().WillReturnError(errors.New("invalid input"))
	mock.ExpectRollback()

	n, err := repos.Lead.BatchInsert(context.Background(), []*models.Lead{{ID: "L1", Name: "Ravi", StatusID: "new"}})
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepo_ExistingIDs(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM leads WHERE id = ANY($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("L2"))

	ids, err := repos.Lead.ExistingIDs(context.Background(), []string{"L1", "L2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"L2"}, ids)

	ids, err = repos.Lead.ExistingIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepo_CountByStatus(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status_id, COUNT(*) FROM leads GROUP BY status_id`)).
		WillReturnRows(sqlmock.NewRows([]string{"status_id", "count"}).AddRow("new", 12).AddRow("won", 3))

	counts, err := repos.Lead.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"new": 12, "won": 3}, counts)
}

func TestCommentRepo_ListByLeadAscending(t *testing.T) {
	repos, mock := newMockRepos(t)
	t1 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY c.created_at ASC`)).
		WithArgs("L1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "lead_id", "user_id", "name", "text", "created_at"}).
			AddRow("c-1", "L1", "u-1", "Asha", "called, no answer", t1).
			AddRow("c-2", "L1", "u-1", "Asha", "site visit booked", t2))

	comments, err := repos.Comment.ListByLead(context.Background(), "L1")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "Asha", comments[0].UserName)
	assert.True(t, comments[0].CreatedAt.Before(comments[1].CreatedAt.Time))
	assert.NoError(t, mock.ExpectationsWereMet())
}
