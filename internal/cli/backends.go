package cli

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"smoke/internal/config"
	"smoke/internal/database"
	"smoke/internal/database/migration"
	"smoke/internal/events"
	"smoke/internal/repository"
	"smoke/internal/repository/postgres"
	"smoke/internal/service"
	"smoke/internal/storage"
)

// Backends are the optional integrations behind the report service.
type Backends struct {
	Reports service.ReportService
	// HasHistory reports whether runs are persisted and can be listed.
	HasHistory bool
	// HasStorage reports whether reports are uploaded to object storage.
	HasStorage bool
	// HasEvents reports whether run events are emitted.
	HasEvents bool

	closers []func() error
}

// OpenBackends connects to every configured integration: object storage for
// reports, PostgreSQL for run history and Redis for run events.
func OpenBackends(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (_ *Backends, err error) {
	b := &Backends{}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	var store storage.Storage
	if cfg.MinIO.Enabled() {
		store, err = storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("initialize object storage: %w", err)
		}
		b.HasStorage = true
		logger.Info("report storage enabled", zap.String("endpoint", cfg.MinIO.Endpoint), zap.String("bucket", cfg.MinIO.Bucket))
	}

	var repo repository.RunRepository
	if cfg.Database.Enabled() {
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		if err := migration.EnsureMigrated(ctx, db, logger); err != nil {
			return nil, err
		}
		repo = postgres.NewRunPostgres(db)
		b.HasHistory = true
		logger.Info("run history enabled", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.Name))
	}

	pub := events.NewNoop()
	if cfg.Redis.Enabled() {
		client, err := events.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		pub = events.NewRedisPublisher(client, cfg.Redis.Queue, logger)
		b.HasEvents = true
		logger.Info("run events enabled", zap.String("queue", cfg.Redis.Queue))
	}

	b.Reports = service.NewReportService(store, repo, pub, logger)
	return b, nil
}

// Publishes reports whether Reports.Publish reaches at least one integration.
func (b *Backends) Publishes() bool {
	return b.HasStorage || b.HasHistory || b.HasEvents
}

// Close releases every opened connection, newest first.
func (b *Backends) Close() error {
	var result *multierror.Error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	b.closers = nil
	return result.ErrorOrNil()
}
