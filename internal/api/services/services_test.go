package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rohits-web03/todo-api/internal/models"
	"github.com/rohits-web03/todo-api/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

var fixedNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *repositories.MemoryStore
	todos *TodoService
	users *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repositories.NewMemoryStore(repositories.WithMemoryClock(func() time.Time { return fixedNow }))
	opts := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithHashCost(bcrypt.MinCost),
		WithLogger(zaptest.NewLogger(t)),
	}
	return &fixture{
		store: store,
		todos: NewTodoService(store.Todos(), opts...),
		users: NewUserService(store.Users(), store.Todos(), opts...),
	}
}

func TestStoreError(t *testing.T) {
	var notFound *models.NotFoundError
	require.ErrorAs(t, storeError("op", "todo", "42", repositories.ErrNotFound), &notFound)
	assert.Equal(t, "todo", notFound.Entity)
	assert.Equal(t, "42", notFound.ID)

	conflict := &models.ConflictError{Field: "email"}
	assert.Same(t, conflict, storeError("op", "user", "", conflict))

	cause := errors.New("boom")
	var internal *models.InternalError
	require.ErrorAs(t, storeError("op", "user", "", cause), &internal)
	assert.ErrorIs(t, internal, cause)
}

func mustUserID(t *testing.T, f *fixture, username, email string) uuid.UUID {
	t.Helper()
	user, err := f.users.Register(context.Background(), models.UserInput{Username: username, Email: email, Password: "abcdef"})
	require.NoError(t, err)
	return user.ID
}
