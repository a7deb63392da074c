package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

type memArchive struct {
	objects map[string]string
}

func (m *memArchive) Get(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (m *memArchive) List(context.Context, string) ([]domain.BlobInfo, error) {
	return nil, nil
}

func (m *memArchive) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func reportRequest(runID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/backtest/runs/"+runID+"/report", nil)
	req.SetPathValue("id", runID)
	return req
}

func TestGetRunReportStreamsArchivedLog(t *testing.T) {
	log := `{"id":"t1"}` + "\n" + `{"id":"t2"}` + "\n"
	archive := &memArchive{objects: map[string]string{
		"backtests/run-1/trades.jsonl": log,
	}}
	h := NewBacktestHandler(nil, nil, nil, archive, testLogger())

	rec := httptest.NewRecorder()
	h.GetRunReport(rec, reportRequest("run-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content type = %q", ct)
	}
	if rec.Body.String() != log {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestGetRunReportUnknownRun(t *testing.T) {
	h := NewBacktestHandler(nil, nil, nil, &memArchive{objects: map[string]string{}}, testLogger())

	rec := httptest.NewRecorder()
	h.GetRunReport(rec, reportRequest("missing"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetRunReportWithoutArchive(t *testing.T) {
	h := NewBacktestHandler(nil, nil, nil, nil, testLogger())

	rec := httptest.NewRecorder()
	h.GetRunReport(rec, reportRequest("run-1"))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
