package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rohits-web03/todo-api/internal/models"
	"github.com/rohits-web03/todo-api/internal/repositories"
	"github.com/rohits-web03/todo-api/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const verificationTokenBytes = 32

type UserService struct {
	users    repositories.UserRepository
	todos    repositories.TodoRepository
	now      func() time.Time
	hashCost int
	logger   *zap.Logger
}

func NewUserService(users repositories.UserRepository, todos repositories.TodoRepository, opts ...Option) *UserService {
	o := buildOptions(opts)
	return &UserService{
		users:    users,
		todos:    todos,
		now:      o.now,
		hashCost: o.hashCost,
		logger:   o.logger,
	}
}

// Register validates the input, checks uniqueness of username and email,
// hashes the password and stores the user with a fresh verification token.
func (s *UserService) Register(ctx context.Context, in models.UserInput) (*models.User, error) {
	user, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	if err := s.ensureFree(ctx, repositories.UserFilter{Username: user.Username}, "username"); err != nil {
		return nil, err
	}
	if err := s.ensureFree(ctx, repositories.UserFilter{Email: user.Email}, "email"); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(in.Password, s.hashCost)
	if err != nil {
		return nil, &models.InternalError{Op: "hash password", Err: err}
	}
	token, err := utils.GenerateSecureToken(verificationTokenBytes)
	if err != nil {
		return nil, &models.InternalError{Op: "generate verification token", Err: err}
	}
	user.Password = hashed
	user.EmailVerificationToken = token

	if err := s.users.Insert(ctx, user); err != nil {
		return nil, storeError("create user", "user", "", err)
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID.String()), zap.String("username", user.Username))

	user.StripSecrets()
	return user, nil
}

func (s *UserService) ensureFree(ctx context.Context, filter repositories.UserFilter, field string) error {
	_, err := s.users.FindOne(ctx, filter)
	switch {
	case err == nil:
		return &models.ConflictError{Field: field}
	case errors.Is(err, repositories.ErrNotFound):
		return nil
	default:
		return &models.InternalError{Op: "check " + field, Err: err}
	}
}

// Get returns the user with its derived todo counts.
func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.UserView, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, storeError("get user", "user", id.String(), err)
	}
	counts, err := s.DeriveCounts(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.UserView{User: *user, TodoCounts: counts}, nil
}

// DeriveCounts counts the todos created by the user, total and completed.
func (s *UserService) DeriveCounts(ctx context.Context, id uuid.UUID) (*models.TodoCounts, error) {
	var counts models.TodoCounts
	completed := true

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.todos.Count(gctx, repositories.TodoFilter{CreatedBy: &id})
		counts.TodoCount = n
		return err
	})
	g.Go(func() error {
		n, err := s.todos.Count(gctx, repositories.TodoFilter{CreatedBy: &id, Completed: &completed})
		counts.CompletedTodoCount = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, &models.InternalError{Op: "count todos", Err: err}
	}
	return &counts, nil
}

// FindByEmail lowercases the address before the lookup.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	user, err := s.users.FindOne(ctx, repositories.UserFilter{Email: email})
	if err != nil {
		return nil, storeError("find user by email", "user", email, err)
	}
	return user, nil
}

func (s *UserService) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	user, err := s.users.FindOne(ctx, repositories.UserFilter{Username: username})
	if err != nil {
		return nil, storeError("find user by username", "user", username, err)
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, filter repositories.UserFilter, sort repositories.Sort) ([]models.User, error) {
	filter.IncludeSecrets = false
	users, err := s.users.Find(ctx, filter, sort)
	if err != nil {
		return nil, storeError("list users", "user", "", err)
	}
	return users, nil
}

func (s *UserService) FindActive(ctx context.Context) ([]models.User, error) {
	active := true
	return s.List(ctx, repositories.UserFilter{IsActive: &active}, repositories.DefaultSort)
}

// UpdateProfile changes name, profileImage and preferences only. The stored
// password hash is never touched.
func (s *UserService) UpdateProfile(ctx context.Context, id uuid.UUID, patch models.ProfilePatch) (*models.User, error) {
	current, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, storeError("get user", "user", id.String(), err)
	}
	changes, err := patch.Changes(current.Preferences)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, id, changes)
}

// ChangePassword verifies the current password and stores a hash of next.
func (s *UserService) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	user, err := s.users.FindOne(ctx, repositories.UserFilter{ID: &id, IncludeSecrets: true})
	if err != nil {
		return storeError("get user", "user", id.String(), err)
	}
	if !utils.VerifyPassword(current, user.Password) {
		return models.ValidationErrors{{Field: "currentPassword", Reason: "current password is incorrect"}}
	}
	if err := models.ValidatePassword(next); err != nil {
		return err
	}
	hashed, err := utils.HashPassword(next, s.hashCost)
	if err != nil {
		return &models.InternalError{Op: "hash password", Err: err}
	}
	_, err = s.apply(ctx, id, models.UserChanges{PasswordHash: &hashed})
	return err
}

func (s *UserService) Activate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	active := true
	return s.apply(ctx, id, models.UserChanges{IsActive: &active})
}

func (s *UserService) Deactivate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	active := false
	return s.apply(ctx, id, models.UserChanges{IsActive: &active})
}

// Authenticate resolves login as an email when it contains "@", otherwise as
// a username, and checks the password. Deactivated accounts cannot log in.
func (s *UserService) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, models.ErrInvalidCredentials
	}
	filter := repositories.UserFilter{Username: login, IncludeSecrets: true}
	if strings.Contains(login, "@") {
		filter = repositories.UserFilter{Email: models.NormalizeEmail(login), IncludeSecrets: true}
	}

	user, err := s.users.FindOne(ctx, filter)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, &models.InternalError{Op: "find user", Err: err}
	}
	if !utils.VerifyPassword(password, user.Password) {
		return nil, models.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, models.ErrAccountInactive
	}
	return s.RecordLogin(ctx, user.ID)
}

// RecordLogin stamps lastLogin with the current time.
func (s *UserService) RecordLogin(ctx context.Context, id uuid.UUID) (*models.User, error) {
	now := s.now()
	return s.apply(ctx, id, models.UserChanges{LastLogin: &now})
}

// VerifyEmail marks the owner of token as verified and consumes the token.
func (s *UserService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, models.ValidationErrors{{Field: "token", Reason: "token is required"}}
	}
	user, err := s.users.FindOne(ctx, repositories.UserFilter{EmailVerificationToken: token})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, models.ValidationErrors{{Field: "token", Reason: "token is invalid or already used"}}
		}
		return nil, &models.InternalError{Op: "find verification token", Err: err}
	}
	verified, consumed := true, ""
	return s.apply(ctx, user.ID, models.UserChanges{IsEmailVerified: &verified, EmailVerificationToken: &consumed})
}

func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.users.DeleteByID(ctx, id); err != nil {
		return storeError("delete user", "user", id.String(), err)
	}
	s.logger.Info("user deleted", zap.String("user_id", id.String()))
	return nil
}

func (s *UserService) apply(ctx context.Context, id uuid.UUID, changes models.UserChanges) (*models.User, error) {
	user, err := s.users.UpdateByID(ctx, id, changes)
	if err != nil {
		return nil, storeError("update user", "user", id.String(), err)
	}
	return user, nil
}
