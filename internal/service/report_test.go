package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"smoke/internal/events"
	eventMocks "smoke/internal/events/mocks"
	"smoke/internal/model"
	"smoke/internal/repository"
	repoMocks "smoke/internal/repository/mocks"
	"smoke/internal/storage"
	storeMocks "smoke/internal/storage/mocks"
)

func newSummary(passed bool) *model.RunSummary {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &model.RunSummary{
		ID:        "01HRUN",
		TargetURL: "http://localhost:8000/health",
		Method:    "GET",
		VUs:       10,
		Duration:  30 * time.Second,
		StartedAt: start,
		EndedAt:   start.Add(30 * time.Second),
		Checks: []model.CheckSummary{
			{Name: "status was 200", Passes: 90, Fails: 10},
		},
		Requests:        model.RequestStats{Count: 100, Failed: 10},
		ThresholdPassed: passed,
	}
}

func TestReportService_Publish(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		passed     bool
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockRunRepository, mPub *eventMocks.MockPublisher)
		wantErrMsg string
		checkRun   func(t *testing.T, run *model.Run)
	}{
		{
			name:   "happy path",
			passed: true,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockRunRepository, mPub *eventMocks.MockPublisher) {
				mStore.On("Put", ctx, "reports/01HRUN.json", mock.MatchedBy(func(r io.Reader) bool {
					buf, ok := r.(*bytes.Buffer)
					var decoded model.RunSummary
					return ok && json.Unmarshal(buf.Bytes(), &decoded) == nil && decoded.ID == "01HRUN"
				}), mock.MatchedBy(func(opt storage.PutObjectOptions) bool {
					return opt.ContentType == "application/json" && opt.Size > 0
				})).Return(func(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) storage.ObjectInfo {
					return storage.ObjectInfo{Key: key}
				}, nil)

				mRepo.On("Create", ctx, mock.MatchedBy(func(run *model.Run) bool {
					return run.ID == "01HRUN" && run.ReportPath == "reports/01HRUN.json" &&
						run.Requests == 100 && run.ChecksPassed == 90 && run.ChecksFailed == 10 &&
						!run.CreatedAt.IsZero()
				})).Return(&model.Run{ID: "01HRUN", ReportPath: "reports/01HRUN.json", DurationMs: 30000, ThresholdPassed: true}, nil)

				mPub.On("Publish", ctx, events.RunCompleted, mock.AnythingOfType("*model.Run")).Return(nil)
			},
			checkRun: func(t *testing.T, run *model.Run) {
				assert.Equal(t, "reports/01HRUN.json", run.ReportPath)
				assert.Equal(t, int64(30000), run.DurationMs)
			},
		},
		{
			name:   "failed threshold emits failure event",
			passed: false,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockRunRepository, mPub *eventMocks.MockPublisher) {
				mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{Key: "reports/01HRUN.json"}, nil)
				mRepo.On("Create", ctx, mock.Anything).Return(&model.Run{ID: "01HRUN"}, nil)
				mPub.On("Publish", ctx, events.RunFailed, mock.Anything).Return(nil)
			},
		},
		{
			name:   "event failure does not fail publish",
			passed: true,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockRunRepository, mPub *eventMocks.MockPublisher) {
				mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{Key: "reports/01HRUN.json"}, nil)
				mRepo.On("Create", ctx, mock.Anything).Return(&model.Run{ID: "01HRUN", ThresholdPassed: true}, nil)
				mPub.On("Publish", ctx, events.RunCompleted, mock.Anything).Return(errors.New("redis down"))
			},
		},
		{
			name: "storage error",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockRunRepository, mPub *eventMocks.MockPublisher) {
				mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{}, errors.New("storage fail"))
			},
			wantErrMsg: "upload to storage: storage fail",
		},
		{
			name: "repository error with successful rollback",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockRunRepository, mPub *eventMocks.MockPublisher) {
				mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{Key: "reports/01HRUN.json"}, nil)
				mRepo.On("Create", ctx, mock.Anything).Return(nil, errors.New("db fail"))
				mStore.On("Delete", ctx, "reports/01HRUN.json").Return(nil)
			},
			wantErrMsg: "db save failed: db fail",
		},
		{
			name: "repository error with failed rollback",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockRunRepository, mPub *eventMocks.MockPublisher) {
				mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{Key: "reports/01HRUN.json"}, nil)
				mRepo.On("Create", ctx, mock.Anything).Return(nil, errors.New("db fail"))
				mStore.On("Delete", ctx, "reports/01HRUN.json").Return(errors.New("delete fail"))
			},
			wantErrMsg: "rollback delete failed: delete fail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockRunRepository)
			mPub := new(eventMocks.MockPublisher)
			svc := NewReportService(mStore, mRepo, mPub, nil)

			tt.setupMocks(mStore, mRepo, mPub)

			run, err := svc.Publish(ctx, newSummary(tt.passed))

			if tt.wantErrMsg != "" {
				assert.ErrorContains(t, err, tt.wantErrMsg)
				assert.Nil(t, run)
			} else {
				require.NoError(t, err)
				require.NotNil(t, run)
				if tt.checkRun != nil {
					tt.checkRun(t, run)
				}
			}

			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
			mPub.AssertExpectations(t)
		})
	}
}

func TestReportService_Publish_NoBackends(t *testing.T) {
	svc := NewReportService(nil, nil, nil, nil)

	run, err := svc.Publish(context.Background(), newSummary(true))
	require.NoError(t, err)
	assert.Equal(t, "01HRUN", run.ID)
	assert.Empty(t, run.ReportPath)

	_, err = svc.Publish(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSummaryNil)
}

func TestReportService_List(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		limit      int
		offset     int
		setupMocks func(mRepo *repoMocks.MockRunRepository)
		wantErr    bool
		checkRes   func(t *testing.T, res *RunListResult)
	}{
		{
			name:   "happy path",
			limit:  10,
			offset: 0,
			setupMocks: func(mRepo *repoMocks.MockRunRepository) {
				mRepo.On("List", ctx, repository.PageQuery{Limit: 10, Offset: 0}).
					Return(&repository.PageResult[model.Run]{
						Items: []model.Run{{ID: "1"}, {ID: "2"}},
						Total: 2,
					}, nil)
			},
			checkRes: func(t *testing.T, res *RunListResult) {
				assert.Len(t, res.Items, 2)
				assert.Equal(t, 2, res.Total)
			},
		},
		{
			name:   "pagination boundary - zero limit uses default",
			limit:  0,
			offset: -1,
			setupMocks: func(mRepo *repoMocks.MockRunRepository) {
				mRepo.On("List", ctx, repository.PageQuery{Limit: 10, Offset: 0}).
					Return(&repository.PageResult[model.Run]{Items: []model.Run{}, Total: 0}, nil)
			},
		},
		{
			name:  "repository error",
			limit: 10,
			setupMocks: func(mRepo *repoMocks.MockRunRepository) {
				mRepo.On("List", ctx, mock.Anything).Return(nil, errors.New("db fail"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockRunRepository)
			svc := NewReportService(nil, mRepo, nil, nil)

			tt.setupMocks(mRepo)

			res, err := svc.List(ctx, tt.limit, tt.offset)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				if tt.checkRes != nil {
					tt.checkRes(t, res)
				}
			}
			mRepo.AssertExpectations(t)
		})
	}
}

func TestReportService_HistoryDisabled(t *testing.T) {
	ctx := context.Background()
	svc := NewReportService(nil, nil, nil, nil)

	_, err := svc.List(ctx, 10, 0)
	assert.ErrorIs(t, err, ErrHistoryDisabled)
	_, err = svc.Get(ctx, "id")
	assert.ErrorIs(t, err, ErrHistoryDisabled)
	_, err = svc.Report(ctx, "id")
	assert.ErrorIs(t, err, ErrHistoryDisabled)
	assert.ErrorIs(t, svc.Delete(ctx, "id"), ErrHistoryDisabled)
}

func TestReportService_Get(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		id         string
		setupMocks func(mRepo *repoMocks.MockRunRepository)
		wantErr    error
	}{
		{
			name: "happy path",
			id:   "valid-id",
			setupMocks: func(mRepo *repoMocks.MockRunRepository) {
				mRepo.On("FindByID", ctx, "valid-id").Return(&model.Run{ID: "valid-id"}, nil)
			},
		},
		{
			name:       "validation - empty id",
			id:         "",
			setupMocks: func(mRepo *repoMocks.MockRunRepository) {},
			wantErr:    ErrIDRequired,
		},
		{
			name: "not found - mapping sql.ErrNoRows",
			id:   "missing-id",
			setupMocks: func(mRepo *repoMocks.MockRunRepository) {
				mRepo.On("FindByID", ctx, "missing-id").Return(nil, sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "generic repository error",
			id:   "error-id",
			setupMocks: func(mRepo *repoMocks.MockRunRepository) {
				mRepo.On("FindByID", ctx, "error-id").Return(nil, errors.New("db fail"))
			},
			wantErr: errors.New("db fail"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockRunRepository)
			svc := NewReportService(nil, mRepo, nil, nil)

			tt.setupMocks(mRepo)

			run, err := svc.Get(ctx, tt.id)

			if tt.wantErr != nil {
				if errors.Is(tt.wantErr, ErrIDRequired) || errors.Is(tt.wantErr, ErrNotFound) {
					assert.ErrorIs(t, err, tt.wantErr)
				} else {
					assert.Error(t, err)
				}
				assert.Nil(t, run)
			} else {
				assert.NoError(t, err)
				require.NotNil(t, run)
				assert.Equal(t, tt.id, run.ID)
			}
			mRepo.AssertExpectations(t)
		})
	}
}

func TestReportService_Report(t *testing.T) {
	ctx := context.Background()

	t.Run("streams stored report", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockRunRepository)
		svc := NewReportService(mStore, mRepo, nil, nil)

		mRepo.On("FindByID", ctx, "id").Return(&model.Run{ID: "id", ReportPath: "reports/id.json"}, nil)
		mStore.On("Get", ctx, "reports/id.json").
			Return(io.NopCloser(strings.NewReader(`{"id":"id"}`)), storage.ObjectInfo{Key: "reports/id.json"}, nil)

		rc, err := svc.Report(ctx, "id")
		require.NoError(t, err)
		defer rc.Close()
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"id"}`, string(body))
	})

	t.Run("no report path", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockRunRepository)
		svc := NewReportService(mStore, mRepo, nil, nil)

		mRepo.On("FindByID", ctx, "id").Return(&model.Run{ID: "id"}, nil)

		_, err := svc.Report(ctx, "id")
		assert.ErrorIs(t, err, ErrReportUnavailable)
	})

	t.Run("storage error", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockRunRepository)
		svc := NewReportService(mStore, mRepo, nil, nil)

		mRepo.On("FindByID", ctx, "id").Return(&model.Run{ID: "id", ReportPath: "reports/id.json"}, nil)
		mStore.On("Get", ctx, "reports/id.json").Return(nil, storage.ObjectInfo{}, errors.New("gone"))

		_, err := svc.Report(ctx, "id")
		assert.ErrorContains(t, err, "open report: gone")
	})
}

func TestReportService_PresignReport(t *testing.T) {
	ctx := context.Background()
	run := &model.Run{ID: "id", ReportPath: "reports/id.json"}

	t.Run("presigns stored report", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		svc := NewReportService(mStore, nil, nil, nil)
		mStore.On("PresignGet", ctx, "reports/id.json", 15*time.Minute).
			Return("http://minio:9000/smoke/reports/id.json?X-Amz-Signature=abc", nil)

		u, err := svc.PresignReport(ctx, run, 15*time.Minute)
		require.NoError(t, err)
		assert.Contains(t, u, "reports/id.json")
		mStore.AssertExpectations(t)
	})

	t.Run("storage disabled", func(t *testing.T) {
		svc := NewReportService(nil, nil, nil, nil)
		_, err := svc.PresignReport(ctx, run, time.Minute)
		assert.ErrorIs(t, err, ErrReportUnavailable)
	})

	t.Run("no report path", func(t *testing.T) {
		svc := NewReportService(new(storeMocks.MockStorage), nil, nil, nil)
		_, err := svc.PresignReport(ctx, &model.Run{ID: "id"}, time.Minute)
		assert.ErrorIs(t, err, ErrReportUnavailable)
	})

	t.Run("storage error", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		svc := NewReportService(mStore, nil, nil, nil)
		mStore.On("PresignGet", ctx, "reports/id.json", time.Minute).Return("", errors.New("no credentials"))

		_, err := svc.PresignReport(ctx, run, time.Minute)
		assert.ErrorContains(t, err, "presign report: no credentials")
	})
}

func TestReportService_Delete(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		id         string
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockRunRepository)
		wantErr    error
	}{
		{
			name: "happy path",
			id:   "valid-id",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockRunRepository) {
				mRepo.On("FindByID", ctx, "valid-id").Return(&model.Run{ID: "valid-id", ReportPath: "reports/valid-id.json"}, nil)
				mStore.On("Delete", ctx, "reports/valid-id.json").Return(nil)
				mRepo.On("Delete", ctx, "valid-id").Return(nil)
			},
		},
		{
			name: "run without report",
			id:   "bare-id",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockRunRepository) {
				mRepo.On("FindByID", ctx, "bare-id").Return(&model.Run{ID: "bare-id"}, nil)
				mRepo.On("Delete", ctx, "bare-id").Return(nil)
			},
		},
		{
			name:       "validation - empty id",
			id:         "",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockRunRepository) {},
			wantErr:    ErrIDRequired,
		},
		{
			name: "not found",
			id:   "missing-id",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockRunRepository) {
				mRepo.On("FindByID", ctx, "missing-id").Return(nil, sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "storage delete error",
			id:   "storage-fail-id",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockRunRepository) {
				mRepo.On("FindByID", ctx, "storage-fail-id").Return(&model.Run{ID: "id", ReportPath: "path"}, nil)
				mStore.On("Delete", ctx, "path").Return(errors.New("storage fail"))
			},
			wantErr: errors.New("delete storage: storage fail"),
		},
		{
			name: "repository delete error",
			id:   "repo-fail-id",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockRunRepository) {
				mRepo.On("FindByID", ctx, "repo-fail-id").Return(&model.Run{ID: "id", ReportPath: "path"}, nil)
				mStore.On("Delete", ctx, "path").Return(nil)
				mRepo.On("Delete", ctx, "repo-fail-id").Return(errors.New("db fail"))
			},
			wantErr: errors.New("db fail"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockRunRepository)
			svc := NewReportService(mStore, mRepo, nil, nil)

			tt.setupMocks(mStore, mRepo)

			err := svc.Delete(ctx, tt.id)

			if tt.wantErr != nil {
				if errors.Is(tt.wantErr, ErrIDRequired) || errors.Is(tt.wantErr, ErrNotFound) {
					assert.ErrorIs(t, err, tt.wantErr)
				} else {
					assert.Error(t, err)
					assert.Contains(t, err.Error(), tt.wantErr.Error())
				}
			} else {
				assert.NoError(t, err)
			}
			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}
