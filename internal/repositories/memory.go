package repositories

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rohits-web03/todo-api/internal/models"
)

// MemoryStore keeps todos and users in process memory. It is used by the
// memory storage driver and by service tests.
type MemoryStore struct {
	mu    sync.RWMutex
	todos map[uuid.UUID]models.Todo
	users map[uuid.UUID]models.User
	now   func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the clock used for createdAt/updatedAt.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		todos: make(map[uuid.UUID]models.Todo),
		users: make(map[uuid.UUID]models.User),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Todos() *MemoryTodoRepo { return &MemoryTodoRepo{s: s} }

func (s *MemoryStore) Users() *MemoryUserRepo { return &MemoryUserRepo{s: s} }

type MemoryTodoRepo struct {
	s *MemoryStore
}

func copyTodo(t models.Todo) models.Todo {
	t.Tags = append(pq.StringArray{}, t.Tags...)
	if t.DueDate != nil {
		due := *t.DueDate
		t.DueDate = &due
	}
	if t.CreatedBy != nil {
		owner := *t.CreatedBy
		t.CreatedBy = &owner
	}
	return t
}

func (r *MemoryTodoRepo) Insert(_ context.Context, todo *models.Todo) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if todo.ID == uuid.Nil {
		todo.ID = uuid.New()
	}
	now := r.s.now()
	todo.CreatedAt, todo.UpdatedAt = now, now
	r.s.todos[todo.ID] = copyTodo(*todo)
	return nil
}

func (r *MemoryTodoRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Todo, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.todos[id]
	if !ok {
		return nil, ErrNotFound
	}
	t = copyTodo(t)
	return &t, nil
}

func (r *MemoryTodoRepo) Find(_ context.Context, filter TodoFilter, sort Sort) ([]models.Todo, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]models.Todo, 0)
	for _, t := range r.s.todos {
		if matchTodo(t, filter) {
			out = append(out, copyTodo(t))
		}
	}
	slices.SortStableFunc(out, func(a, b models.Todo) int {
		return compareTodos(a, b, sort)
	})
	return out, nil
}

func (r *MemoryTodoRepo) UpdateByID(_ context.Context, id uuid.UUID, changes models.TodoChanges) (*models.Todo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.todos[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !changes.Empty() {
		changes.Apply(&t)
		t.UpdatedAt = r.s.now()
		r.s.todos[id] = t
	}
	t = copyTodo(t)
	return &t, nil
}

func (r *MemoryTodoRepo) ToggleCompleted(_ context.Context, id uuid.UUID) (*models.Todo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.todos[id]
	if !ok {
		return nil, ErrNotFound
	}
	t.Completed = !t.Completed
	t.UpdatedAt = r.s.now()
	r.s.todos[id] = t
	t = copyTodo(t)
	return &t, nil
}

func (r *MemoryTodoRepo) DeleteByID(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.todos[id]; !ok {
		return ErrNotFound
	}
	delete(r.s.todos, id)
	return nil
}

func (r *MemoryTodoRepo) Count(_ context.Context, filter TodoFilter) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var n int64
	for _, t := range r.s.todos {
		if matchTodo(t, filter) {
			n++
		}
	}
	return n, nil
}

func matchTodo(t models.Todo, f TodoFilter) bool {
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Tag != "" && !slices.Contains(t.Tags, f.Tag) {
		return false
	}
	if f.CreatedBy != nil && (t.CreatedBy == nil || *t.CreatedBy != *f.CreatedBy) {
		return false
	}
	if f.DueFrom != nil || f.DueTo != nil {
		if t.DueDate == nil {
			return false
		}
		if f.DueFrom != nil && t.DueDate.Before(*f.DueFrom) {
			return false
		}
		if f.DueTo != nil && t.DueDate.After(*f.DueTo) {
			return false
		}
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Title), q) && !strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}
	return true
}

var priorityRank = map[models.Priority]int{
	models.PriorityLow:    0,
	models.PriorityMedium: 1,
	models.PriorityHigh:   2,
}

func compareTodos(a, b models.Todo, sort Sort) int {
	var c int
	switch sort.Field {
	case "updatedAt":
		c = a.UpdatedAt.Compare(b.UpdatedAt)
	case "dueDate":
		c = compareOptionalTime(a.DueDate, b.DueDate)
	case "priority":
		c = priorityRank[a.Priority] - priorityRank[b.Priority]
	case "title":
		c = strings.Compare(a.Title, b.Title)
	default:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if sort.Desc {
		return -c
	}
	return c
}

// compareOptionalTime orders nil after every set time.
func compareOptionalTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}

type MemoryUserRepo struct {
	s *MemoryStore
}

func (r *MemoryUserRepo) Insert(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Username == user.Username {
			return &models.ConflictError{Field: "username"}
		}
		if u.Email == user.Email {
			return &models.ConflictError{Field: "email"}
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := r.s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	r.s.users[user.ID] = projectUser(*user, true)
	return nil
}

func (r *MemoryUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.FindOne(ctx, UserFilter{ID: &id})
}

func (r *MemoryUserRepo) FindOne(_ context.Context, filter UserFilter) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if matchUser(u, filter) {
			u = projectUser(u, filter.IncludeSecrets)
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepo) Find(_ context.Context, filter UserFilter, sort Sort) ([]models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]models.User, 0)
	for _, u := range r.s.users {
		if matchUser(u, filter) {
			out = append(out, projectUser(u, filter.IncludeSecrets))
		}
	}
	slices.SortStableFunc(out, func(a, b models.User) int {
		var c int
		switch sort.Field {
		case "username":
			c = strings.Compare(a.Username, b.Username)
		case "lastLogin":
			c = compareOptionalTime(a.LastLogin, b.LastLogin)
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if sort.Desc {
			return -c
		}
		return c
	})
	return out, nil
}

func (r *MemoryUserRepo) UpdateByID(_ context.Context, id uuid.UUID, changes models.UserChanges) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !changes.Empty() {
		changes.Apply(&u)
		u.UpdatedAt = r.s.now()
		r.s.users[id] = u
	}
	u = projectUser(u, false)
	return &u, nil
}

func (r *MemoryUserRepo) DeleteByID(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.s.users, id)
	return nil
}

func (r *MemoryUserRepo) Count(_ context.Context, filter UserFilter) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var n int64
	for _, u := range r.s.users {
		if matchUser(u, filter) {
			n++
		}
	}
	return n, nil
}

func matchUser(u models.User, f UserFilter) bool {
	if f.ID != nil && u.ID != *f.ID {
		return false
	}
	if f.Email != "" && u.Email != models.NormalizeEmail(f.Email) {
		return false
	}
	if f.Username != "" && u.Username != f.Username {
		return false
	}
	if f.IsActive != nil && u.IsActive != *f.IsActive {
		return false
	}
	if f.EmailVerificationToken != "" && u.EmailVerificationToken != f.EmailVerificationToken {
		return false
	}
	return true
}

func projectUser(u models.User, includeSecrets bool) models.User {
	if u.ProfileImage != nil {
		img := *u.ProfileImage
		u.ProfileImage = &img
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		u.LastLogin = &t
	}
	if u.PasswordResetExpires != nil {
		t := *u.PasswordResetExpires
		u.PasswordResetExpires = &t
	}
	if !includeSecrets {
		u.StripSecrets()
	}
	return u
}
