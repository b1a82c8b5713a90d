package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siterisk/adapters/memory"
	"siterisk/app"
	"siterisk/domain/metrics"
	"siterisk/domain/run"
	"siterisk/internal/config"
	"siterisk/ports"
)

func newTestServer(t *testing.T) (*Server, ports.RunStore) {
	t.Helper()
	store := memory.NewRunStore()
	pipeline, err := app.NewPipelineService(config.Default(), store, nil)
	require.NoError(t, err)
	return NewServer(pipeline, store, nil), store
}

func intp(v int) *int { return &v }

func apiEvents() []metrics.RawEvent {
	return []metrics.RawEvent{
		{StudyID: "STUDY-1", SiteID: "1001", Country: "Germany", Region: "Europe",
			SubjectID: "S-1", Category: metrics.CategorySAEPending, Value: intp(2)},
		{StudyID: "STUDY-1", SiteID: "1001", Country: "Germany", Region: "Europe",
			Category: metrics.CategoryMissingPages, Value: intp(8)},
		{StudyID: "STUDY-1", SiteID: "2002", Country: "France", Region: "Europe",
			SubjectID: "S-2", Category: metrics.CategoryMissingPages, Value: intp(3)},
	}
}

func postRun(t *testing.T, server *Server, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateRun(t *testing.T) {
	server, store := newTestServer(t)

	rec := postRun(t, server, map[string]interface{}{"events": apiEvents()})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result run.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Len(t, result.Sites, 2)
	assert.NotEmpty(t, result.Fingerprint)

	// The run is retrievable through the store afterwards.
	loaded, err := store.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.Fingerprint, loaded.Fingerprint)
}

func TestCreateRun_RejectsBadInput(t *testing.T) {
	server, _ := newTestServer(t)

	rec := postRun(t, server, map[string]interface{}{"events": []metrics.RawEvent{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader([]byte("{not json")))
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRun(t *testing.T) {
	server, _ := newTestServer(t)

	created := postRun(t, server, map[string]interface{}{"events": apiEvents()})
	require.Equal(t, http.StatusCreated, created.Code)
	var result run.Result
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &result))

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+result.RunID.String(), nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var fetched run.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, result.RunID, fetched.RunID)
}

func TestGetRun_NotFound(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/no-such-run", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns(t *testing.T) {
	server, _ := newTestServer(t)
	require.Equal(t, http.StatusCreated, postRun(t, server, map[string]interface{}{"events": apiEvents()}).Code)
	require.Equal(t, http.StatusCreated, postRun(t, server, map[string]interface{}{"events": apiEvents()}).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Runs []run.Manifest `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Len(t, payload.Runs, 2)
}
