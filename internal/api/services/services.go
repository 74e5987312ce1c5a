package services

import (
	"errors"
	"time"

	"github.com/rohits-web03/todo-api/internal/models"
	"github.com/rohits-web03/todo-api/internal/repositories"
	"github.com/rohits-web03/todo-api/internal/utils"
	"go.uber.org/zap"
)

type options struct {
	now      func() time.Time
	hashCost int
	logger   *zap.Logger
}

type Option func(*options)

// WithClock sets the time source used for validation and derived fields.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(o *options) { o.hashCost = cost }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) options {
	o := options{
		now:      time.Now,
		hashCost: utils.PasswordCost,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// storeError converts a repository error into the public error taxonomy.
func storeError(op, entity, id string, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return &models.NotFoundError{Entity: entity, ID: id}
	}
	var conflict *models.ConflictError
	if errors.As(err, &conflict) {
		return conflict
	}
	return &models.InternalError{Op: op, Err: err}
}
