package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rohits-web03/todo-api/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const pgUniqueViolation = "23505"

// OpenPostgres connects to the database at dsn.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// MigratePostgres creates the schema and indexes.
func MigratePostgres(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		return fmt.Errorf("failed to enable uuid-ossp: %w", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Todo{}); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// translatePgError maps driver errors onto the repository error contract.
func translatePgError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &models.ConflictError{Field: conflictField(pgErr.ConstraintName)}
	}
	return err
}

// conflictField turns an index name such as idx_users_email or
// users_username_key into the field it guards.
func conflictField(constraint string) string {
	switch {
	case strings.Contains(constraint, "email"):
		return "email"
	case strings.Contains(constraint, "username"):
		return "username"
	}
	if i := strings.LastIndex(constraint, "_"); i >= 0 {
		return constraint[i+1:]
	}
	return constraint
}

func orderBy(sort Sort, columns map[string]string) clause.OrderByColumn {
	col, ok := columns[sort.Field]
	if !ok {
		col, sort.Desc = "created_at", true
	}
	return clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: sort.Desc}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type PostgresTodoRepo struct {
	db *gorm.DB
}

func NewPostgresTodoRepo(db *gorm.DB) *PostgresTodoRepo {
	return &PostgresTodoRepo{db: db}
}

func (r *PostgresTodoRepo) Insert(ctx context.Context, todo *models.Todo) error {
	if err := r.db.WithContext(ctx).Create(todo).Error; err != nil {
		return fmt.Errorf("failed to insert todo: %w", translatePgError(err))
	}
	return nil
}

func (r *PostgresTodoRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Todo, error) {
	var todo models.Todo
	if err := r.db.WithContext(ctx).First(&todo, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find todo: %w", err)
	}
	return &todo, nil
}

func (r *PostgresTodoRepo) Find(ctx context.Context, filter TodoFilter, sort Sort) ([]models.Todo, error) {
	var todos []models.Todo
	q := applyTodoFilter(r.db.WithContext(ctx).Model(&models.Todo{}), filter)
	if err := q.Order(orderBy(sort, todoSortFields)).Find(&todos).Error; err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	return todos, nil
}

func (r *PostgresTodoRepo) UpdateByID(ctx context.Context, id uuid.UUID, changes models.TodoChanges) (*models.Todo, error) {
	if changes.Empty() {
		return r.FindByID(ctx, id)
	}
	var todo models.Todo
	res := r.db.WithContext(ctx).Model(&todo).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Updates(todoColumns(changes))
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update todo: %w", translatePgError(res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &todo, nil
}

func (r *PostgresTodoRepo) ToggleCompleted(ctx context.Context, id uuid.UUID) (*models.Todo, error) {
	var todo models.Todo
	res := r.db.WithContext(ctx).Model(&todo).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"completed":  gorm.Expr("NOT completed"),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to toggle todo: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &todo, nil
}

func (r *PostgresTodoRepo) DeleteByID(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Todo{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete todo: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresTodoRepo) Count(ctx context.Context, filter TodoFilter) (int64, error) {
	var n int64
	if err := applyTodoFilter(r.db.WithContext(ctx).Model(&models.Todo{}), filter).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count todos: %w", err)
	}
	return n, nil
}

func applyTodoFilter(q *gorm.DB, f TodoFilter) *gorm.DB {
	if f.Completed != nil {
		q = q.Where("completed = ?", *f.Completed)
	}
	if f.Priority != nil {
		q = q.Where("priority = ?", *f.Priority)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Tag != "" {
		q = q.Where("? = ANY(tags)", f.Tag)
	}
	if f.CreatedBy != nil {
		q = q.Where("created_by = ?", *f.CreatedBy)
	}
	if f.DueFrom != nil {
		q = q.Where("due_date >= ?", *f.DueFrom)
	}
	if f.DueTo != nil {
		q = q.Where("due_date <= ?", *f.DueTo)
	}
	if f.Search != "" {
		like := "%" + escapeLike(f.Search) + "%"
		q = q.Where("(title ILIKE ? OR description ILIKE ?)", like, like)
	}
	return q
}

func todoColumns(c models.TodoChanges) map[string]any {
	cols := map[string]any{"updated_at": time.Now()}
	if c.Title != nil {
		cols["title"] = *c.Title
	}
	if c.Description != nil {
		cols["description"] = *c.Description
	}
	if c.Completed != nil {
		cols["completed"] = *c.Completed
	}
	if c.Priority != nil {
		cols["priority"] = *c.Priority
	}
	if c.Category != nil {
		cols["category"] = *c.Category
	}
	if c.ClearDueDate {
		cols["due_date"] = nil
	} else if c.DueDate != nil {
		cols["due_date"] = *c.DueDate
	}
	if c.Tags != nil {
		cols["tags"] = *c.Tags
	}
	return cols
}

type PostgresUserRepo struct {
	db *gorm.DB
}

func NewPostgresUserRepo(db *gorm.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

var userSecretColumns = []string{"password", "email_verification_token", "password_reset_token", "password_reset_expires"}

func (r *PostgresUserRepo) Insert(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to insert user: %w", translatePgError(err))
	}
	return nil
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.FindOne(ctx, UserFilter{ID: &id})
}

func (r *PostgresUserRepo) FindOne(ctx context.Context, filter UserFilter) (*models.User, error) {
	var user models.User
	q := applyUserFilter(r.db.WithContext(ctx).Model(&models.User{}), filter)
	if err := q.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

func (r *PostgresUserRepo) Find(ctx context.Context, filter UserFilter, sort Sort) ([]models.User, error) {
	var users []models.User
	q := applyUserFilter(r.db.WithContext(ctx).Model(&models.User{}), filter)
	if err := q.Order(orderBy(sort, userSortFields)).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (r *PostgresUserRepo) UpdateByID(ctx context.Context, id uuid.UUID, changes models.UserChanges) (*models.User, error) {
	if changes.Empty() {
		return r.FindByID(ctx, id)
	}
	cols, err := userColumns(changes)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	var user models.User
	res := r.db.WithContext(ctx).Model(&user).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Updates(cols)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update user: %w", translatePgError(res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	user.StripSecrets()
	return &user, nil
}

func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) Count(ctx context.Context, filter UserFilter) (int64, error) {
	var n int64
	if err := applyUserFilter(r.db.WithContext(ctx).Model(&models.User{}), filter).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func applyUserFilter(q *gorm.DB, f UserFilter) *gorm.DB {
	if !f.IncludeSecrets {
		q = q.Omit(userSecretColumns...)
	}
	if f.ID != nil {
		q = q.Where("id = ?", *f.ID)
	}
	if f.Email != "" {
		q = q.Where("email = ?", models.NormalizeEmail(f.Email))
	}
	if f.Username != "" {
		q = q.Where("username = ?", f.Username)
	}
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}
	if f.EmailVerificationToken != "" {
		q = q.Where("email_verification_token = ?", f.EmailVerificationToken)
	}
	return q
}

func userColumns(c models.UserChanges) (map[string]any, error) {
	cols := map[string]any{"updated_at": time.Now()}
	if c.Name != nil {
		cols["name"] = *c.Name
	}
	if c.ClearProfileImage {
		cols["profile_image"] = nil
	} else if c.ProfileImage != nil {
		cols["profile_image"] = *c.ProfileImage
	}
	if c.Preferences != nil {
		// map updates bypass the json serializer, so encode by hand
		raw, err := json.Marshal(c.Preferences)
		if err != nil {
			return nil, fmt.Errorf("encode preferences: %w", err)
		}
		cols["preferences"] = string(raw)
	}
	if c.IsActive != nil {
		cols["is_active"] = *c.IsActive
	}
	if c.IsEmailVerified != nil {
		cols["is_email_verified"] = *c.IsEmailVerified
	}
	if c.EmailVerificationToken != nil {
		cols["email_verification_token"] = *c.EmailVerificationToken
	}
	if c.PasswordHash != nil {
		cols["password"] = *c.PasswordHash
		cols["password_reset_token"] = ""
		cols["password_reset_expires"] = nil
	}
	if c.LastLogin != nil {
		cols["last_login"] = *c.LastLogin
	}
	return cols, nil
}
