package main

import (
	"context"
	"fmt"

	"github.com/rohits-web03/todo-api/internal/config"
	"github.com/rohits-web03/todo-api/internal/repositories"
	"go.uber.org/zap"
)

type storage struct {
	Todos repositories.TodoRepository
	Users repositories.UserRepository
	close func(context.Context) error
}

func (s *storage) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// openStorage connects the configured driver. With migrate set, the schema
// (Postgres) or indexes (MongoDB) are created first.
func openStorage(ctx context.Context, cfg config.Config, log *zap.Logger, migrate bool) (*storage, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		if cfg.DB_URL == "" {
			return nil, fmt.Errorf("DB_URL is required for the %s driver", cfg.StorageDriver)
		}
		db, err := repositories.OpenPostgres(cfg.DB_URL)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		if migrate {
			if err := repositories.MigratePostgres(db); err != nil {
				_ = sqlDB.Close()
				return nil, err
			}
			log.Info("postgres schema migrated")
		}
		log.Info("connected to postgres")
		return &storage{
			Todos: repositories.NewPostgresTodoRepo(db),
			Users: repositories.NewPostgresUserRepo(db),
			close: func(context.Context) error { return sqlDB.Close() },
		}, nil

	case config.DriverMongo:
		client, err := repositories.ConnectMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.Mongo.Database)
		if migrate {
			if err := repositories.EnsureMongoIndexes(ctx, db); err != nil {
				_ = client.Disconnect(ctx)
				return nil, err
			}
			log.Info("mongodb indexes ensured")
		}
		log.Info("connected to mongodb", zap.String("database", cfg.Mongo.Database))
		return &storage{
			Todos: repositories.NewMongoTodoRepo(db),
			Users: repositories.NewMongoUserRepo(db),
			close: client.Disconnect,
		}, nil

	case config.DriverMemory:
		log.Warn("using in-memory storage; data is lost on restart")
		store := repositories.NewMemoryStore()
		return &storage{Todos: store.Todos(), Users: store.Users()}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}
