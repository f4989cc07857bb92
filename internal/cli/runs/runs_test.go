package runs

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smoke/internal/cli"
	"smoke/internal/config"
	"smoke/internal/model"
	"smoke/internal/service"
	serviceMocks "smoke/internal/service/mocks"
)

func execute(t *testing.T, svc service.ReportService, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	global := &cli.Options{
		IOStreams: cli.IOStreams{Out: out, ErrOut: &bytes.Buffer{}},
		Config:    &config.AppConfig{},
		Log:       zap.NewNop(),
	}
	closed := false
	cmd := newCommand(global, func(context.Context, *cli.Options) (service.ReportService, func() error, error) {
		return svc, func() error { closed = true; return nil }, nil
	})
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	if svc != nil && err == nil {
		assert.True(t, closed, "report service released")
	}
	return out.String(), err
}

func sampleRun(id string) model.Run {
	return model.Run{
		ID:              id,
		TargetURL:       "http://localhost:8000/health",
		VUs:             10,
		DurationMs:      30000,
		Requests:        100,
		FailedRequests:  10,
		ChecksPassed:    90,
		ChecksFailed:    10,
		ThresholdPassed: false,
		ReportPath:      "reports/" + id + ".json",
		StartedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestList(t *testing.T) {
	svc := new(serviceMocks.MockReportService)
	svc.On("List", mock.Anything, 5, 10).Return(&service.RunListResult{
		Items: []model.Run{sampleRun("01HA"), sampleRun("01HB")},
		Total: 12,
	}, nil)

	out, err := execute(t, svc, "list", "--limit", "5", "--offset", "10")
	require.NoError(t, err)

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "01HA")
	assert.Contains(t, out, "01HB")
	assert.Contains(t, out, "90.00%")
	assert.Contains(t, out, "2 of 12 runs")
	svc.AssertExpectations(t)
}

func TestList_JSON(t *testing.T) {
	svc := new(serviceMocks.MockReportService)
	svc.On("List", mock.Anything, 10, 0).Return(&service.RunListResult{
		Items: []model.Run{sampleRun("01HA")},
		Total: 1,
	}, nil)

	out, err := execute(t, svc, "list", "-o", "json")
	require.NoError(t, err)

	var res service.RunListResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, "01HA", res.Items[0].ID)
}

func TestGet(t *testing.T) {
	svc := new(serviceMocks.MockReportService)
	run := sampleRun("01HA")
	svc.On("Get", mock.Anything, "01HA").Return(&run, nil)
	svc.On("PresignReport", mock.Anything, &run, 15*time.Minute).
		Return("http://minio:9000/smoke/reports/01HA.json?X-Amz-Signature=abc", nil)

	out, err := execute(t, svc, "get", "01HA")
	require.NoError(t, err)
	assert.Contains(t, out, "01HA")
	assert.Contains(t, out, "30s")
	assert.Contains(t, out, "100 (10 failed)")
	assert.Contains(t, out, "reports/01HA.json")
	assert.Contains(t, out, "X-Amz-Signature=abc")
	svc.AssertExpectations(t)
}

func TestGet_JSONReportURL(t *testing.T) {
	svc := new(serviceMocks.MockReportService)
	run := sampleRun("01HA")
	svc.On("Get", mock.Anything, "01HA").Return(&run, nil)
	svc.On("PresignReport", mock.Anything, &run, time.Hour).Return("http://minio:9000/signed", nil)

	out, err := execute(t, svc, "get", "01HA", "-o", "json", "--url-expiry", "1h")
	require.NoError(t, err)

	var got struct {
		ID         string `json:"id"`
		ReportPath string `json:"report_path"`
		ReportURL  string `json:"report_url"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "01HA", got.ID)
	assert.Equal(t, "http://minio:9000/signed", got.ReportURL)
}

func TestGet_ReportURLOmitted(t *testing.T) {
	t.Run("storage not configured", func(t *testing.T) {
		svc := new(serviceMocks.MockReportService)
		run := sampleRun("01HA")
		svc.On("Get", mock.Anything, "01HA").Return(&run, nil)
		svc.On("PresignReport", mock.Anything, &run, 15*time.Minute).Return("", service.ErrReportUnavailable)

		out, err := execute(t, svc, "get", "01HA")
		require.NoError(t, err)
		assert.NotContains(t, out, "report url")
	})

	t.Run("disabled by flag", func(t *testing.T) {
		svc := new(serviceMocks.MockReportService)
		run := sampleRun("01HA")
		svc.On("Get", mock.Anything, "01HA").Return(&run, nil)

		out, err := execute(t, svc, "get", "01HA", "--url-expiry", "0")
		require.NoError(t, err)
		assert.NotContains(t, out, "report url")
		svc.AssertNotCalled(t, "PresignReport", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestGet_NotFound(t *testing.T) {
	svc := new(serviceMocks.MockReportService)
	svc.On("Get", mock.Anything, "nope").Return(nil, service.ErrNotFound)

	_, err := execute(t, svc, "get", "nope")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestReport(t *testing.T) {
	svc := new(serviceMocks.MockReportService)
	svc.On("Report", mock.Anything, "01HA").Return(io.NopCloser(strings.NewReader(`{"id":"01HA"}`)), nil)

	out, err := execute(t, svc, "report", "01HA")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"01HA"}`, out)
}

func TestDelete(t *testing.T) {
	svc := new(serviceMocks.MockReportService)
	svc.On("Delete", mock.Anything, "01HA").Return(nil)

	out, err := execute(t, svc, "delete", "01HA")
	require.NoError(t, err)
	assert.Contains(t, out, "run 01HA deleted")
	svc.AssertExpectations(t)
}

func TestArgsAndOutputValidation(t *testing.T) {
	_, err := execute(t, nil, "get")
	assert.Error(t, err)

	_, err = execute(t, nil, "list", "-o", "yaml")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestOpenHistory_Disabled(t *testing.T) {
	_, _, err := openHistory(context.Background(), &cli.Options{Config: &config.AppConfig{}, Log: zap.NewNop()})
	assert.ErrorIs(t, err, service.ErrHistoryDisabled)
}
