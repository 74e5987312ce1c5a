package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rohits-web03/todo-api/internal/models"
)

// ErrNotFound is returned when no record matches the requested id or filter.
var ErrNotFound = errors.New("record not found")

// Sort orders results by a logical (JSON) field name.
type Sort struct {
	Field string
	Desc  bool
}

var DefaultSort = Sort{Field: "createdAt", Desc: true}

var (
	todoSortFields = map[string]string{
		"createdAt": "created_at",
		"updatedAt": "updated_at",
		"dueDate":   "due_date",
		"priority":  "priority",
		"title":     "title",
	}
	userSortFields = map[string]string{
		"createdAt": "created_at",
		"username":  "username",
		"lastLogin": "last_login",
	}
)

// ParseTodoSort parses "field" or "-field"; an empty string yields DefaultSort.
func ParseTodoSort(s string) (Sort, error) {
	return parseSort(s, todoSortFields)
}

func ParseUserSort(s string) (Sort, error) {
	return parseSort(s, userSortFields)
}

func parseSort(s string, allowed map[string]string) (Sort, error) {
	if s == "" {
		return DefaultSort, nil
	}
	sort := Sort{Field: strings.TrimPrefix(s, "-"), Desc: strings.HasPrefix(s, "-")}
	if _, ok := allowed[sort.Field]; !ok {
		return Sort{}, models.ValidationErrors{{Field: "sort", Reason: fmt.Sprintf("cannot sort by %q", sort.Field)}}
	}
	return sort, nil
}

type TodoFilter struct {
	Completed *bool
	Priority  *models.Priority
	Category  string
	Tag       string
	CreatedBy *uuid.UUID
	DueFrom   *time.Time
	DueTo     *time.Time
	Search    string
}

type UserFilter struct {
	ID                     *uuid.UUID
	Email                  string
	Username               string
	IsActive               *bool
	EmailVerificationToken string
	// IncludeSecrets loads the password hash and tokens, which are skipped by default.
	IncludeSecrets bool
}

// TodoRepository is the storage driver contract for todos.
type TodoRepository interface {
	Insert(ctx context.Context, todo *models.Todo) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Todo, error)
	Find(ctx context.Context, filter TodoFilter, sort Sort) ([]models.Todo, error)
	// UpdateByID applies changes and returns the updated record.
	UpdateByID(ctx context.Context, id uuid.UUID, changes models.TodoChanges) (*models.Todo, error)
	// ToggleCompleted flips completed in a single store write.
	ToggleCompleted(ctx context.Context, id uuid.UUID) (*models.Todo, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context, filter TodoFilter) (int64, error)
}

// UserRepository is the storage driver contract for users. Unique
// violations on username or email surface as *models.ConflictError.
type UserRepository interface {
	Insert(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindOne(ctx context.Context, filter UserFilter) (*models.User, error)
	Find(ctx context.Context, filter UserFilter, sort Sort) ([]models.User, error)
	UpdateByID(ctx context.Context, id uuid.UUID, changes models.UserChanges) (*models.User, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context, filter UserFilter) (int64, error)
}
