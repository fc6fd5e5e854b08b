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
)

var profileColumnNames = []string{"id", "email", "full_name", "role", "active", "created_at", "updated_at"}

func TestProfileRepositoryFindByID(t *testing.T) {
	store, mock, cleanup := newStoreMock(t, 1)
	defer cleanup()
	repo := NewProfileRepository(store)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE id = $1")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(profileColumnNames).AddRow("user-1", "c@example.com", "College", "college", true, now, now))

	profile, err := repo.FindByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleCollege, profile.Role)
	assert.True(t, profile.Active)
}

func TestProfileRepositoryUpdateRole(t *testing.T) {
	store, mock, cleanup := newStoreMock(t, 1)
	defer cleanup()
	repo := NewProfileRepository(store)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE profiles SET role = $2")).
		WithArgs("user-1", models.RoleAdmin, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(profileColumnNames).AddRow("user-1", "c@example.com", "College", "admin", true, now, now))

	profile, err := repo.UpdateRole(context.Background(), "user-1", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, profile.Role)
}

func TestProfileRepositoryUpdateRoleRejectsUnknown(t *testing.T) {
	store, _, cleanup := newStoreMock(t, 1)
	defer cleanup()
	repo := NewProfileRepository(store)

	_, err := repo.UpdateRole(context.Background(), "user-1", models.Role("owner"))
	require.Error(t, err)
}

func TestProfileRepositoryUpdateRoleMissing(t *testing.T) {
	store, mock, cleanup := newStoreMock(t, 1)
	defer cleanup()
	repo := NewProfileRepository(store)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE profiles")).WillReturnError(sql.ErrNoRows)

	_, err := repo.UpdateRole(context.Background(), "user-x", models.RoleStudent)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAuditRepositoryCreate(t *testing.T) {
	store, mock, cleanup := newStoreMock(t, 1)
	defer cleanup()
	repo := NewAuditRepository(store)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	log := &models.AuditLog{Action: models.AuditActionEventTransition, Resource: "event"}
	require.NoError(t, repo.CreateAuditLog(context.Background(), log))
	assert.NotEmpty(t, log.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
