package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rohits-web03/todo-api/internal/models"
	"github.com/rohits-web03/todo-api/internal/repositories"
	"go.uber.org/zap"
)

// DefaultDueSoonDays is the findDueSoon window when the caller gives none.
const DefaultDueSoonDays = 7

type TodoService struct {
	repo   repositories.TodoRepository
	now    func() time.Time
	logger *zap.Logger
}

func NewTodoService(repo repositories.TodoRepository, opts ...Option) *TodoService {
	o := buildOptions(opts)
	return &TodoService{repo: repo, now: o.now, logger: o.logger}
}

// Now is the snapshot time used for derived fields of a response.
func (s *TodoService) Now() time.Time {
	return s.now()
}

func (s *TodoService) Create(ctx context.Context, in models.TodoInput) (*models.Todo, error) {
	todo, err := in.Normalize(s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, todo); err != nil {
		return nil, storeError("create todo", "todo", "", err)
	}
	s.logger.Debug("todo created", zap.String("todo_id", todo.ID.String()))
	return todo, nil
}

func (s *TodoService) Get(ctx context.Context, id uuid.UUID) (*models.Todo, error) {
	todo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, storeError("get todo", "todo", id.String(), err)
	}
	return todo, nil
}

func (s *TodoService) List(ctx context.Context, filter repositories.TodoFilter, sort repositories.Sort) ([]models.Todo, error) {
	todos, err := s.repo.Find(ctx, filter, sort)
	if err != nil {
		return nil, storeError("list todos", "todo", "", err)
	}
	return todos, nil
}

// Update validates only the supplied fields and leaves the rest untouched.
func (s *TodoService) Update(ctx context.Context, id uuid.UUID, patch models.TodoPatch) (*models.Todo, error) {
	changes, err := patch.Changes(s.now())
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, id, changes)
}

func (s *TodoService) Toggle(ctx context.Context, id uuid.UUID) (*models.Todo, error) {
	todo, err := s.repo.ToggleCompleted(ctx, id)
	if err != nil {
		return nil, storeError("toggle todo", "todo", id.String(), err)
	}
	return todo, nil
}

func (s *TodoService) SetCompleted(ctx context.Context, id uuid.UUID, completed bool) (*models.Todo, error) {
	return s.apply(ctx, id, models.TodoChanges{Completed: &completed})
}

func (s *TodoService) SetPriority(ctx context.Context, id uuid.UUID, p models.Priority) (*models.Todo, error) {
	if !p.Valid() {
		return nil, invalidPriority()
	}
	return s.apply(ctx, id, models.TodoChanges{Priority: &p})
}

func (s *TodoService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return storeError("delete todo", "todo", id.String(), err)
	}
	return nil
}

func (s *TodoService) FindCompleted(ctx context.Context) ([]models.Todo, error) {
	completed := true
	return s.List(ctx, repositories.TodoFilter{Completed: &completed}, repositories.DefaultSort)
}

func (s *TodoService) FindPending(ctx context.Context) ([]models.Todo, error) {
	completed := false
	return s.List(ctx, repositories.TodoFilter{Completed: &completed}, repositories.DefaultSort)
}

func (s *TodoService) FindByPriority(ctx context.Context, p models.Priority) ([]models.Todo, error) {
	if !p.Valid() {
		return nil, invalidPriority()
	}
	return s.List(ctx, repositories.TodoFilter{Priority: &p}, repositories.DefaultSort)
}

// FindDueSoon returns incomplete todos due within [now, now+days], soonest first.
func (s *TodoService) FindDueSoon(ctx context.Context, now time.Time, days int) ([]models.Todo, error) {
	if days <= 0 {
		return nil, models.ValidationErrors{{Field: "days", Reason: "days must be a positive integer"}}
	}
	end := now.AddDate(0, 0, days)
	completed := false
	filter := repositories.TodoFilter{Completed: &completed, DueFrom: &now, DueTo: &end}
	return s.List(ctx, filter, repositories.Sort{Field: "dueDate"})
}

func (s *TodoService) apply(ctx context.Context, id uuid.UUID, changes models.TodoChanges) (*models.Todo, error) {
	todo, err := s.repo.UpdateByID(ctx, id, changes)
	if err != nil {
		return nil, storeError("update todo", "todo", id.String(), err)
	}
	return todo, nil
}

func invalidPriority() error {
	return models.ValidationErrors{{Field: "priority", Reason: "priority must be one of low, medium, high"}}
}
