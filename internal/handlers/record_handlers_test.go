package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radar-uptime/internal/models"
	"radar-uptime/internal/repository"
	"radar-uptime/internal/repository/migrate"
	"radar-uptime/internal/services"
	"radar-uptime/internal/stations"
	"radar-uptime/pkg/database"
	"radar-uptime/pkg/logging"
	"radar-uptime/pkg/metrics"
)

var day = time.Date(2019, 3, 14, 0, 0, 0, 0, time.UTC)

func rec(stid int, start time.Time, dur time.Duration, valid bool) models.Record {
	return models.Record{
		StationID:            stid,
		StartTime:            start,
		EndTime:              start.Add(dur),
		CommandName:          "normalscan",
		ControlProgramID:     151,
		MinPulseCount:        20,
		TimesConsistent:      true,
		IsValid:              valid,
		MinTxFreq:            10500,
		MaxTxFreq:            10500,
		CrossCorrelationFlag: 1,
	}
}

type testServer struct {
	router *mux.Router
	db     *database.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := logging.NewStructuredLogger("handlers-test", "test", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	collector := metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry())

	db, err := database.Open(&database.Config{Driver: database.DriverDuckDB}, logger, collector)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = migrate.NewRunner(db.DB().DB).Up(context.Background())
	require.NoError(t, err)

	repo := repository.NewRecordRepository(db, logger, collector)
	_, err = repo.CreateRecordsBatch(context.Background(), []models.Record{
		rec(5, day.Add(22*time.Hour), 4*time.Hour, true),
		rec(5, day.Add(30*time.Hour), time.Hour, false),
		rec(33, day.Add(time.Hour), time.Hour, true),
	})
	require.NoError(t, err)

	table, err := stations.Load()
	require.NoError(t, err)

	handler := NewRecordHandler(
		services.NewRecordService(repo, table, logger, collector),
		services.NewUptimeService(repo, clockwork.NewFakeClockAt(day.Add(40*time.Hour)), logger, collector),
		logger,
		collector,
	)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	return &testServer{router: router, db: db}
}

func (s *testServer) get(t *testing.T, target string, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w
}

func TestGetRecords(t *testing.T) {
	srv := newTestServer(t)

	var page struct {
		Data       []models.Record `json:"data"`
		Total      int             `json:"total"`
		Page       int             `json:"page"`
		Limit      int             `json:"limit"`
		TotalPages int             `json:"total_pages"`
	}

	w := srv.get(t, "/api/records", &page)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 100, page.Limit)

	w = srv.get(t, "/api/records?station=sas&start_date=2019-03-15&end_date=2019-03-15&valid_only=true", &page)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, day.Add(22*time.Hour), page.Data[0].StartTime)

	w = srv.get(t, "/api/records?station=5&limit=1&page=2", &page)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Data, 1)
	assert.False(t, page.Data[0].IsValid)
}

func TestGetRecords_BadRequest(t *testing.T) {
	srv := newTestServer(t)

	for _, target := range []string{
		"/api/records?station=nowhere",
		"/api/records?start_date=14-03-2019",
		"/api/records?end_date=yesterday",
		"/api/records?valid_only=maybe",
	} {
		var errResp ErrorResponse
		w := srv.get(t, target, &errResp)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Equal(t, http.StatusBadRequest, errResp.Code, target)
		assert.NotEmpty(t, errResp.Message, target)
	}
}

func TestGetRecord(t *testing.T) {
	srv := newTestServer(t)

	var got models.Record
	w := srv.get(t, "/api/records/bks/2019-03-14T01:00:00.000000", &got)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 33, got.StationID)

	var errResp ErrorResponse
	w = srv.get(t, "/api/records/bks/2019-03-14T02:00:00.000000", &errResp)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.get(t, "/api/records/bks/noon", &errResp)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUptime(t *testing.T) {
	srv := newTestServer(t)

	var resp UptimeResponse
	w := srv.get(t, "/api/uptime?station=sas&start_date=2019-03-14", &resp)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, resp.StationID)
	assert.Equal(t, "2019-03-14", resp.StartDate)
	assert.Equal(t, "2019-03-15", resp.EndDate, "end defaults to the clock's day")
	require.Len(t, resp.Days, 2)
	assert.InDelta(t, 7200, resp.Days[0].Seconds, 1e-9)
	assert.InDelta(t, 7200, resp.Days[1].Seconds, 1e-9)

	w = srv.get(t, "/api/uptime?station=5&start_date=2019-03-15&end_date=2019-03-15&include_invalid=true", &resp)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp.Days, 1)
	assert.InDelta(t, 10800, resp.Days[0].Seconds, 1e-9)
	assert.InDelta(t, 0.125, resp.Days[0].Fraction, 1e-12)
}

func TestGetUptime_BadRequest(t *testing.T) {
	srv := newTestServer(t)

	for _, target := range []string{
		"/api/uptime",
		"/api/uptime?station=zzz",
		"/api/uptime?station=sas&start_date=2019-03-16&end_date=2019-03-14",
		"/api/uptime?station=sas&include_invalid=perhaps",
	} {
		w := srv.get(t, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestGetStations(t *testing.T) {
	srv := newTestServer(t)

	var resp struct {
		Data  []services.StationSummary `json:"data"`
		Total int                       `json:"total"`
	}
	w := srv.get(t, "/api/stations", &resp)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, len(resp.Data), resp.Total)

	withRecords := 0
	for _, s := range resp.Data {
		if s.HasRecords {
			withRecords++
		}
	}
	assert.Equal(t, 2, withRecords)
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t)

	var status map[string]string
	w := srv.get(t, "/health", &status)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", status["status"])

	require.NoError(t, srv.db.Close())
	w = srv.get(t, "/health", &status)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", status["status"])
}

func TestDocs(t *testing.T) {
	w := httptest.NewRecorder()
	OpenAPISpec(w, httptest.NewRequest(http.MethodGet, SpecPath, nil))
	var spec map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &spec))
	paths := spec["paths"].(map[string]interface{})
	for _, p := range []string{"/api/records", "/api/uptime", "/api/stations", "/health"} {
		assert.Contains(t, paths, p)
	}

	w = httptest.NewRecorder()
	SwaggerUI(w, httptest.NewRequest(http.MethodGet, "/api/docs", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "Radar Uptime API Documentation"))
}
