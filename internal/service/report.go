package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"go.uber.org/zap"

	"smoke/internal/events"
	"smoke/internal/model"
	"smoke/internal/repository"
	"smoke/internal/storage"
	"smoke/internal/summary"
)

var (
	ErrIDRequired        = errors.New("id is required")
	ErrNotFound          = errors.New("run not found")
	ErrSummaryNil        = errors.New("summary is nil")
	ErrHistoryDisabled   = errors.New("run history is not configured")
	ErrReportUnavailable = errors.New("report is not available")
)

// RunListResult is the service-level DTO for paginated runs.
type RunListResult struct {
	Items []model.Run `json:"data"`
	Total int         `json:"total"`
}

// ReportService publishes finished runs and serves their history.
type ReportService interface {
	// Publish uploads the JSON report, saves the run record and emits a run event.
	// The upload is rolled back if the record cannot be saved.
	Publish(ctx context.Context, s *model.RunSummary) (*model.Run, error)

	// List returns runs using limit/offset and a total count.
	List(ctx context.Context, limit, offset int) (*RunListResult, error)

	// Get returns a single run by its ID.
	Get(ctx context.Context, id string) (*model.Run, error)

	// Report opens the stored JSON report of a run. The caller closes it.
	Report(ctx context.Context, id string) (io.ReadCloser, error)

	// PresignReport returns a time-limited download URL for the stored report of run.
	PresignReport(ctx context.Context, run *model.Run, expiry time.Duration) (string, error)

	// Delete removes a run's report and then its record.
	Delete(ctx context.Context, id string) error
}

// reportService is a concrete implementation of ReportService.
// store and repo are optional; a nil value disables that step.
type reportService struct {
	store  storage.Storage
	repo   repository.RunRepository
	events events.Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewReportService constructs a new ReportService.
func NewReportService(store storage.Storage, repo repository.RunRepository, pub events.Publisher, logger *zap.Logger) ReportService {
	if pub == nil {
		pub = events.NewNoop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &reportService{
		store:  store,
		repo:   repo,
		events: pub,
		logger: logger.With(zap.String("component", "service.report")),
		now:    time.Now,
	}
}

// ReportKey returns the object key a run's report is stored under.
func ReportKey(id string) string {
	return path.Join("reports", id+".json")
}

func (s *reportService) Publish(ctx context.Context, sum *model.RunSummary) (*model.Run, error) {
	if sum == nil {
		return nil, ErrSummaryNil
	}
	run := sum.Run()
	run.CreatedAt = s.now().UTC()

	uploaded := ""
	if s.store != nil {
		var buf bytes.Buffer
		if err := summary.WriteJSON(&buf, sum); err != nil {
			return nil, fmt.Errorf("encode report: %w", err)
		}
		info, err := s.store.Put(ctx, ReportKey(sum.ID), &buf, storage.PutObjectOptions{
			Size:        int64(buf.Len()),
			ContentType: "application/json",
			Metadata:    map[string]string{"target-url": sum.TargetURL},
		})
		if err != nil {
			return nil, fmt.Errorf("upload to storage: %w", err)
		}
		uploaded = info.Key
		run.ReportPath = info.Key
	}

	if s.repo != nil {
		stored, err := s.repo.Create(ctx, run)
		if err != nil {
			if uploaded != "" {
				// Rollback: delete the report from storage
				if delErr := s.store.Delete(ctx, uploaded); delErr != nil {
					return nil, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
				}
			}
			return nil, fmt.Errorf("db save failed: %w", err)
		}
		run = stored
	}

	eventType := events.RunCompleted
	if !run.ThresholdPassed {
		eventType = events.RunFailed
	}
	if err := s.events.Publish(ctx, eventType, run); err != nil {
		s.logger.Warn("publish run event", zap.String("run_id", run.ID), zap.Error(err))
	}
	return run, nil
}

// List returns paginated runs without exposing repository types.
func (s *reportService) List(ctx context.Context, limit, offset int) (*RunListResult, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &RunListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *reportService) Get(ctx context.Context, id string) (*model.Run, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	if id == "" {
		return nil, ErrIDRequired
	}
	run, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *reportService) Report(ctx context.Context, id string) (io.ReadCloser, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.store == nil || run.ReportPath == "" {
		return nil, ErrReportUnavailable
	}
	rc, _, err := s.store.Get(ctx, run.ReportPath)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	return rc, nil
}

func (s *reportService) PresignReport(ctx context.Context, run *model.Run, expiry time.Duration) (string, error) {
	if run == nil || run.ReportPath == "" || s.store == nil {
		return "", ErrReportUnavailable
	}
	u, err := s.store.PresignGet(ctx, run.ReportPath, expiry)
	if err != nil {
		return "", fmt.Errorf("presign report: %w", err)
	}
	return u, nil
}

// Delete removes the report first; if that fails the row is kept so the object is not orphaned.
func (s *reportService) Delete(ctx context.Context, id string) error {
	run, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.store != nil && run.ReportPath != "" {
		if err := s.store.Delete(ctx, run.ReportPath); err != nil {
			return fmt.Errorf("delete storage: %w", err)
		}
	}
	// repository ignores missing rows
	return s.repo.Delete(ctx, id)
}
