package repositories

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/rohits-web03/todo-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	return openMockGorm(t, sqlDB), mock
}

func openMockGorm(t *testing.T, sqlDB *sql.DB) *gorm.DB {
	t.Helper()
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

var todoRowColumns = []string{"id", "title", "description", "completed", "priority", "category", "due_date", "tags", "created_by", "created_at", "updated_at"}

func TestPostgresTodoRepo_DeleteByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresTodoRepo(db)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "todos" WHERE id = $1`)).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.DeleteByID(context.Background(), id))

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "todos" WHERE id = $1`)).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.DeleteByID(context.Background(), id), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTodoRepo_Count(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresTodoRepo(db)
	owner := uuid.New()
	completed := true

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "todos" WHERE completed = $1 AND created_by = $2`)).
		WithArgs(true, owner).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := repo.Count(context.Background(), TodoFilter{Completed: &completed, CreatedBy: &owner})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTodoRepo_FindByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresTodoRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "todos" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTodoRepo_UpdateByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresTodoRepo(db)
	title := "new"

	mock.ExpectQuery(`UPDATE "todos" SET .* RETURNING \*`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.UpdateByID(context.Background(), uuid.New(), models.TodoChanges{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTodoRepo_UpdateByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresTodoRepo(db)
	id, owner := uuid.New(), uuid.New()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	title := "renamed"
	tags := pq.StringArray{"home", "weekly"}

	mock.ExpectQuery(`UPDATE "todos" SET .*"tags"=.*"title"=.* WHERE id = .* RETURNING \*`).
		WillReturnRows(sqlmock.NewRows(todoRowColumns).
			AddRow(id, "renamed", "", false, "high", "chores", due, "{home,weekly}", owner, created, created.Add(time.Hour)))

	todo, err := repo.UpdateByID(context.Background(), id, models.TodoChanges{Title: &title, Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, id, todo.ID)
	assert.Equal(t, "renamed", todo.Title)
	assert.Equal(t, models.PriorityHigh, todo.Priority)
	assert.Equal(t, pq.StringArray{"home", "weekly"}, todo.Tags)
	require.NotNil(t, todo.DueDate)
	assert.True(t, due.Equal(*todo.DueDate))
	require.NotNil(t, todo.CreatedBy)
	assert.Equal(t, owner, *todo.CreatedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTodoRepo_ToggleCompleted(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresTodoRepo(db)
	id := uuid.New()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE "todos" SET "completed"=NOT completed,"updated_at"=\$1 WHERE id = \$2 RETURNING \*`).
		WithArgs(sqlmock.AnyArg(), id).
		WillReturnRows(sqlmock.NewRows(todoRowColumns).
			AddRow(id, "a", "", true, "medium", "", nil, "{}", nil, now, now))

	todo, err := repo.ToggleCompleted(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, todo.Completed)
	assert.Empty(t, todo.Tags)
	assert.Nil(t, todo.DueDate)

	mock.ExpectQuery(`UPDATE "todos" SET "completed"=NOT completed`).
		WillReturnRows(sqlmock.NewRows(todoRowColumns))
	_, err = repo.ToggleCompleted(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserRepo_FindOmitsSecrets(t *testing.T) {
	var queries []string
	matcher := sqlmock.QueryMatcherFunc(func(expectedSQL, actualSQL string) error {
		queries = append(queries, actualSQL)
		return sqlmock.QueryMatcherRegexp.Match(expectedSQL, actualSQL)
	})
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	require.NoError(t, err)
	repo := NewPostgresUserRepo(openMockGorm(t, sqlDB))
	id := uuid.New()
	active := true

	mock.ExpectQuery(`SELECT .* FROM "users" WHERE is_active = \$1 ORDER BY "username"`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "is_active", "preferences"}).
			AddRow(id, "kim", "kim@example.com", true, `{"theme":"dark","language":"en","notifications":{"email":true,"push":false}}`))

	users, err := repo.Find(context.Background(), UserFilter{IsActive: &active}, Sort{Field: "username"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "kim", users[0].Username)
	assert.Empty(t, users[0].Password)
	assert.Equal(t, models.ThemeDark, users[0].Preferences.Theme)
	assert.False(t, users[0].Preferences.Notifications.Push)

	require.Len(t, queries, 1)
	for _, col := range userSecretColumns {
		assert.NotContains(t, queries[0], `"`+col+`"`)
	}
	assert.Contains(t, queries[0], `"username"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserColumns_EncodesPreferences(t *testing.T) {
	prefs := models.Preferences{Theme: models.ThemeDark, Language: "de"}
	hash := "new-hash"

	cols, err := userColumns(models.UserChanges{Preferences: &prefs, PasswordHash: &hash})
	require.NoError(t, err)
	assert.JSONEq(t, `{"theme":"dark","language":"de","notifications":{"email":false,"push":false}}`, cols["preferences"].(string))
	assert.Equal(t, "new-hash", cols["password"])
	assert.Equal(t, "", cols["password_reset_token"])
	assert.Contains(t, cols, "password_reset_expires")
}

func TestPostgresUserRepo_InsertConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "idx_users_email"})

	err := repo.Insert(context.Background(), &models.User{Username: "kim", Email: "kim@example.com", Password: "hash"})

	var conflict *models.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "email", conflict.Field)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslatePgError(t *testing.T) {
	assert.ErrorIs(t, translatePgError(gorm.ErrRecordNotFound), ErrNotFound)

	var conflict *models.ConflictError
	err := translatePgError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "idx_users_username"})
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "username", conflict.Field)

	other := errors.New("connection reset")
	assert.Equal(t, other, translatePgError(other))
}

func TestConflictField(t *testing.T) {
	assert.Equal(t, "email", conflictField("idx_users_email"))
	assert.Equal(t, "username", conflictField("users_username_key"))
	assert.Equal(t, "slug", conflictField("idx_posts_slug"))
	assert.Equal(t, "plain", conflictField("plain"))
}
