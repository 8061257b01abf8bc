package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"radar-uptime/internal/models"
	"radar-uptime/internal/repository"
	"radar-uptime/internal/services"
	"radar-uptime/pkg/logging"
	"radar-uptime/pkg/metrics"
)

const dateLayout = "2006-01-02"

// RecordHandler handles record, uptime and station API endpoints
type RecordHandler struct {
	recordService *services.RecordService
	uptimeService *services.UptimeService
	logger        *logging.StructuredLogger
	metrics       *metrics.Collector
}

// NewRecordHandler creates a new record handler
func NewRecordHandler(
	recordService *services.RecordService,
	uptimeService *services.UptimeService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *RecordHandler {
	return &RecordHandler{
		recordService: recordService,
		uptimeService: uptimeService,
		logger:        logger,
		metrics:       metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// UptimeResponse wraps a daily uptime report
type UptimeResponse struct {
	StationID      int                    `json:"station_id"`
	StartDate      string                 `json:"start_date"`
	EndDate        string                 `json:"end_date"`
	IncludeInvalid bool                   `json:"include_invalid"`
	Days           []services.DailyUptime `json:"days"`
}

func (h *RecordHandler) observe(endpoint string, start time.Time) {
	h.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// parseBool accepts the strconv forms; an empty value is false.
func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// GetRecords handles GET /api/records
func (h *RecordHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/records", time.Now())

	q := r.URL.Query()
	page := 1
	limit := 100

	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 1000 {
		limit = l
	}

	filter := repository.RecordFilter{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	if station := q.Get("station"); station != "" {
		id, err := h.recordService.ResolveStation(station)
		if err != nil {
			h.sendError(w, r, err.Error(), http.StatusBadRequest)
			return
		}
		filter.StationID = &id
	}

	if s := q.Get("start_date"); s != "" {
		from, err := time.Parse(dateLayout, s)
		if err != nil {
			h.sendError(w, r, "invalid start_date format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.From = &from
	}

	if s := q.Get("end_date"); s != "" {
		end, err := time.Parse(dateLayout, s)
		if err != nil {
			h.sendError(w, r, "invalid end_date format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		to := end.AddDate(0, 0, 1)
		filter.To = &to
	}

	validOnly, err := parseBool(q.Get("valid_only"))
	if err != nil {
		h.sendError(w, r, "invalid valid_only, expected true or false", http.StatusBadRequest)
		return
	}
	filter.ValidOnly = validOnly

	records, total, err := h.recordService.GetRecords(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_RECORDS_ERROR] Failed to get records", logging.Fields{
			"filter": filter,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/records")
		h.sendError(w, r, "failed to retrieve records", http.StatusInternalServerError)
		return
	}

	response := PaginatedResponse{
		Data:       records,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}

	h.metrics.RecordAPIRequest("/api/records", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// GetRecord handles GET /api/records/{station}/{start}
func (h *RecordHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/records/{station}/{start}", time.Now())

	vars := mux.Vars(r)
	id, err := h.recordService.ResolveStation(vars["station"])
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	start, err := models.ParseTime(vars["start"])
	if err != nil {
		h.sendError(w, r, "invalid start, expected "+models.TimeLayout, http.StatusBadRequest)
		return
	}

	rec, err := h.recordService.GetRecord(ctx, id, start)
	var notFound *repository.NotFoundError
	switch {
	case errors.As(err, &notFound):
		h.sendError(w, r, notFound.Error(), http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error(ctx, "[API_GET_RECORD_ERROR] Failed to get record", logging.Fields{
			"station_id": id,
			"start":      vars["start"],
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/records/{station}/{start}")
		h.sendError(w, r, "failed to retrieve record", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/records/{station}/{start}", "GET", "200")
	h.sendJSON(w, rec, http.StatusOK)
}

// GetUptime handles GET /api/uptime
func (h *RecordHandler) GetUptime(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/uptime", time.Now())

	q := r.URL.Query()
	station := q.Get("station")
	if station == "" {
		h.sendError(w, r, "station is required", http.StatusBadRequest)
		return
	}
	id, err := h.recordService.ResolveStation(station)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	query := services.UptimeQuery{StationID: id}
	if s := q.Get("start_date"); s != "" {
		if query.From, err = time.Parse(dateLayout, s); err != nil {
			h.sendError(w, r, "invalid start_date format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}
	if s := q.Get("end_date"); s != "" {
		if query.To, err = time.Parse(dateLayout, s); err != nil {
			h.sendError(w, r, "invalid end_date format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}
	if query.IncludeInvalid, err = parseBool(q.Get("include_invalid")); err != nil {
		h.sendError(w, r, "invalid include_invalid, expected true or false", http.StatusBadRequest)
		return
	}

	days, err := h.uptimeService.DailyUptime(ctx, query)
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		h.sendError(w, r, verr.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error(ctx, "[API_GET_UPTIME_ERROR] Failed to calculate uptime", logging.Fields{
			"station_id": id,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/uptime")
		h.sendError(w, r, "failed to calculate uptime", http.StatusInternalServerError)
		return
	}

	response := UptimeResponse{
		StationID:      id,
		IncludeInvalid: query.IncludeInvalid,
		Days:           days,
	}
	if len(days) > 0 {
		response.StartDate = days[0].Date.Format(dateLayout)
		response.EndDate = days[len(days)-1].Date.Format(dateLayout)
	}

	h.metrics.RecordAPIRequest("/api/uptime", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// GetStations handles GET /api/stations
func (h *RecordHandler) GetStations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/stations", time.Now())

	list, err := h.recordService.GetStations(ctx)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_STATIONS_ERROR] Failed to list stations", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/stations")
		h.sendError(w, r, "failed to list stations", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/stations", "GET", "200")
	h.sendJSON(w, map[string]interface{}{"data": list, "total": len(list)}, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *RecordHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"database":  "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if err := h.recordService.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Database unreachable", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "unhealthy"
		status["database"] = err.Error()
		code = http.StatusServiceUnavailable
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, code)
}

// sendJSON sends a JSON response
func (h *RecordHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *RecordHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all record API routes
func (h *RecordHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/records", h.GetRecords).Methods("GET")
	router.HandleFunc("/api/records/{station}/{start}", h.GetRecord).Methods("GET")
	router.HandleFunc("/api/uptime", h.GetUptime).Methods("GET")
	router.HandleFunc("/api/stations", h.GetStations).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
