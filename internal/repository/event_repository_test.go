package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

var eventColumnNames = []string{"id", "owner_id", "title", "venue", "location", "category", "status", "version", "created_at", "updated_at"}

func TestEventRepositoryCreate(t *testing.T) {
	store, mock, cleanup := newStoreMock(t, 1)
	defer cleanup()
	repo := NewEventRepository(store)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WithArgs(sqlmock.AnyArg(), "owner-1", "Tech Fest", "Hall A", "Campus", "Technical", "pending", 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	event := &models.Event{OwnerID: "owner-1", Title: "Tech Fest", Venue: "Hall A", Location: "Campus", Category: models.CategoryTechnical}
	require.NoError(t, repo.Create(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, models.EventStatusPending, event.Status)
	assert.EqualValues(t, 1, event.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryCreateRejectsUnknownCategory(t *testing.T) {
	store, _, cleanup := newStoreMock(t, 1)
	defer cleanup()
	repo := NewEventRepository(store)

	err := repo.Create(context.Background(), &models.Event{OwnerID: "owner-1", Title: "x", Category: "Music"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidField)
}

func TestEventRepositoryFindByIDNotFound(t *testing.T) {
	store, mock, cleanup := newStoreMock(t, 3)
	defer cleanup()
	repo := NewEventRepository(store)

	mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	event, err := repo.FindByID(context.Background(), "missing")
	assert.Nil(t, event)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryList(t *testing.T) {
	store, mock, cleanup := newStoreMock(t, 1)
	defer cleanup()
	repo := NewEventRepository(store)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE 1=1 AND status IN ($1) AND owner_id = $2 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs(models.EventStatusApproved, "owner-1").
		WillReturnRows(sqlmock.NewRows(eventColumnNames).
			AddRow("event-1", "owner-1", "Tech Fest", "Hall A", "Campus", "Technical", "approved", 2, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM events WHERE 1=1")).
		WithArgs(models.EventStatusApproved, "owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	events, total, err := repo.List(context.Background(), models.EventFilter{
		Status:  []models.EventStatus{models.EventStatusApproved},
		OwnerID: "owner-1",
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, models.EventStatusApproved, events[0].Status)
}

func TestEventRepositoryListVisibleTo(t *testing.T) {
	store, mock, cleanup := newStoreMock(t, 1)
	defer cleanup()
	repo := NewEventRepository(store)

	mock.ExpectQuery(regexp.QuoteMeta("(status IN ('approved','completed') OR owner_id = $1) ORDER BY created_at DESC LIMIT 10 OFFSET 10")).
		WithArgs("college-1").
		WillReturnRows(sqlmock.NewRows(eventColumnNames))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM events WHERE 1=1")).
		WithArgs("college-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	events, total, err := repo.List(context.Background(), models.EventFilter{VisibleTo: "college-1", Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 12, total)
}

func TestEventRepositoryUpdateStaleVersion(t *testing.T) {
	store, mock, cleanup := newStoreMock(t, 1)
	defer cleanup()
	repo := NewEventRepository(store)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE events")).
		WithArgs("event-1", int64(3), "New", "Hall B", "Campus", models.CategoryCultural, sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	err := repo.Update(context.Background(), &models.Event{
		ID: "event-1", Title: "New", Venue: "Hall B", Location: "Campus", Category: models.CategoryCultural,
	}, 3)
	assert.ErrorIs(t, err, appErrors.ErrStaleVersion)
}

func TestEventRepositoryTransitionRejectCascades(t *testing.T) {
	store, mock, cleanup := newStoreMock(t, 1)
	defer cleanup()
	repo := NewEventRepository(store)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE events SET status = $3")).
		WithArgs("event-1", models.EventStatusApproved, models.EventStatusRejected, int64(2), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(eventColumnNames).
			AddRow("event-1", "owner-1", "Tech Fest", "Hall A", "Campus", "Technical", "rejected", 3, now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET status = 'cancelled'")).
		WithArgs("event-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	event, cancelled, err := repo.Transition(context.Background(), "event-1", models.EventStatusApproved, models.EventStatusRejected, 2)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusRejected, event.Status)
	assert.EqualValues(t, 3, event.Version)
	assert.EqualValues(t, 4, cancelled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryTransitionApproveSkipsCascade(t *testing.T) {
	store, mock, cleanup := newStoreMock(t, 1)
	defer cleanup()
	repo := NewEventRepository(store)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE events SET status = $3")).
		WithArgs("event-1", models.EventStatusPending, models.EventStatusApproved, int64(1), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(eventColumnNames).
			AddRow("event-1", "owner-1", "Tech Fest", "Hall A", "Campus", "Technical", "approved", 2, now, now))
	mock.ExpectCommit()

	_, cancelled, err := repo.Transition(context.Background(), "event-1", models.EventStatusPending, models.EventStatusApproved, 1)
	require.NoError(t, err)
	assert.Zero(t, cancelled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryTransitionStale(t *testing.T) {
	store, mock, cleanup := newStoreMock(t, 1)
	defer cleanup()
	repo := NewEventRepository(store)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE events SET status = $3")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, _, err := repo.Transition(context.Background(), "event-1", models.EventStatusPending, models.EventStatusApproved, 1)
	assert.ErrorIs(t, err, appErrors.ErrStaleVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryScheduledEnd(t *testing.T) {
	store, mock, cleanup := newStoreMock(t, 1)
	defer cleanup()
	repo := NewEventRepository(store)

	end := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(end_time) FROM sub_events")).
		WithArgs("event-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(end))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(end_time) FROM sub_events")).
		WithArgs("event-2").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	got, err := repo.ScheduledEnd(context.Background(), "event-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, end.Equal(*got))

	none, err := repo.ScheduledEnd(context.Background(), "event-2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestEventRepositoryListDueForCompletion(t *testing.T) {
	store, mock, cleanup := newStoreMock(t, 1)
	defer cleanup()
	repo := NewEventRepository(store)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("HAVING MAX(s.end_time) < $1")).
		WithArgs(now, 10).
		WillReturnRows(sqlmock.NewRows(eventColumnNames).
			AddRow("event-1", "owner-1", "Tech Fest", "Hall A", "Campus", "Technical", "approved", 2, now, now))

	events, err := repo.ListDueForCompletion(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "event-1", events[0].ID)
}
