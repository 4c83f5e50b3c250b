package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/codigix/nobal-casting-sub004/pkg/apperrors"
	"github.com/codigix/nobal-casting-sub004/pkg/models"
	"github.com/codigix/nobal-casting-sub004/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// RecomputeRequest for POST /api/oee/recompute
type RecomputeRequest struct {
	JobCardID string `json:"job_card_id"`
	LogDate   string `json:"log_date"`
	Shift     string `json:"shift"`
}

// RecomputeResponse reports the stored job_card record, or deleted=true when
// the tuple no longer has data.
type RecomputeResponse struct {
	Record  *models.MetricRecord `json:"record"`
	Deleted bool                 `json:"deleted"`
}

// ============================================================================
// Handler
// ============================================================================

// OEEHandler serves the recompute entry point and every report.
type OEEHandler struct {
	recompute services.RecomputeService
	reports   services.ReportingService
	dashboard services.DashboardService
	logger    *zap.Logger
}

// NewOEEHandler creates a new OEE handler.
func NewOEEHandler(
	recompute services.RecomputeService,
	reports services.ReportingService,
	dashboard services.DashboardService,
	logger *zap.Logger,
) *OEEHandler {
	return &OEEHandler{
		recompute: recompute,
		reports:   reports,
		dashboard: dashboard,
		logger:    logger.Named("oee-handler"),
	}
}

// RegisterRoutes registers the OEE handler's routes on the given mux.
func (h *OEEHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/oee"

	mux.HandleFunc("POST "+base+"/recompute", h.Recompute)
	mux.HandleFunc("GET "+base+"/metrics", h.Metrics)
	mux.HandleFunc("GET "+base+"/summary", h.Summary)
	mux.HandleFunc("GET "+base+"/trends", h.Trends)
	mux.HandleFunc("GET "+base+"/downtime-reasons", h.DowntimeReasons)
	mux.HandleFunc("GET "+base+"/analysis/machines", h.ComprehensiveAnalysis)
	mux.HandleFunc("GET "+base+"/analysis/{level}/{reference_id}", h.Analysis)
	mux.HandleFunc("GET "+base+"/drilldown/{level}/{reference_id}", h.DrillDown)
	mux.HandleFunc("GET "+base+"/machines/{machine_id}", h.Machine)
	mux.HandleFunc("GET "+base+"/machines/{machine_id}/history", h.MachineHistory)
	mux.HandleFunc("GET "+base+"/job-cards/recent", h.RecentJobCards)
	mux.HandleFunc("GET "+base+"/dashboard", h.Dashboard)
}

// Recompute handles POST /api/oee/recompute
func (h *OEEHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	var req RecomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if strings.TrimSpace(req.JobCardID) == "" || strings.TrimSpace(req.Shift) == "" {
		writeServiceError(w, h.logger, "recompute_failed",
			fmt.Errorf("%w: job_card_id, log_date and shift are required", apperrors.ErrInvalidArgument))
		return
	}
	logDate, err := models.ParseDate(strings.TrimSpace(req.LogDate))
	if err != nil {
		writeServiceError(w, h.logger, "recompute_failed", err)
		return
	}

	rec, err := h.recompute.Recompute(r.Context(), req.JobCardID, logDate, req.Shift)
	if err != nil {
		writeServiceError(w, h.logger.With(
			zap.String("job_card_id", req.JobCardID),
			zap.String("log_date", req.LogDate),
			zap.String("shift", req.Shift)), "recompute_failed", err)
		return
	}

	writeSuccess(w, h.logger, RecomputeResponse{Record: rec, Deleted: rec == nil})
}

// filters parses the report filters, writing a 400 on failure.
func (h *OEEHandler) filters(w http.ResponseWriter, r *http.Request) (models.ReportFilters, bool) {
	filters, err := ParseReportFilters(r)
	if err != nil {
		writeServiceError(w, h.logger, "invalid_request", err)
		return filters, false
	}
	return filters, true
}

// Metrics handles GET /api/oee/metrics
func (h *OEEHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	rows, err := h.reports.GetMetrics(r.Context(), filters)
	if err != nil {
		writeServiceError(w, h.logger, "get_metrics_failed", err)
		return
	}
	writeSuccess(w, h.logger, rows)
}

// Summary handles GET /api/oee/summary
func (h *OEEHandler) Summary(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	summary, err := h.reports.GetSummary(r.Context(), filters)
	if err != nil {
		writeServiceError(w, h.logger, "get_summary_failed", err)
		return
	}
	writeSuccess(w, h.logger, summary)
}

// Trends handles GET /api/oee/trends
func (h *OEEHandler) Trends(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	points, err := h.reports.GetTrends(r.Context(), filters)
	if err != nil {
		writeServiceError(w, h.logger, "get_trends_failed", err)
		return
	}
	writeSuccess(w, h.logger, points)
}

// DowntimeReasons handles GET /api/oee/downtime-reasons
func (h *OEEHandler) DowntimeReasons(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	reasons, err := h.reports.GetDowntimeReasons(r.Context(), filters)
	if err != nil {
		writeServiceError(w, h.logger, "get_downtime_reasons_failed", err)
		return
	}
	if reasons == nil {
		reasons = []models.DowntimeReason{}
	}
	writeSuccess(w, h.logger, reasons)
}

// ComprehensiveAnalysis handles GET /api/oee/analysis/machines
func (h *OEEHandler) ComprehensiveAnalysis(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	analyses, err := h.reports.GetComprehensiveAnalysis(r.Context(), filters)
	if err != nil {
		writeServiceError(w, h.logger, "get_analysis_failed", err)
		return
	}
	writeSuccess(w, h.logger, analyses)
}

// Analysis handles GET /api/oee/analysis/{level}/{reference_id}
func (h *OEEHandler) Analysis(w http.ResponseWriter, r *http.Request) {
	level, ref, err := ParseLevelAndReference(r)
	if err != nil {
		writeServiceError(w, h.logger, "invalid_request", err)
		return
	}
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	records, err := h.reports.GetAnalysis(r.Context(), level, ref, filters)
	if err != nil {
		writeServiceError(w, h.logger, "get_analysis_failed", err)
		return
	}
	writeSuccess(w, h.logger, records)
}

// DrillDown handles GET /api/oee/drilldown/{level}/{reference_id}
func (h *OEEHandler) DrillDown(w http.ResponseWriter, r *http.Request) {
	level, ref, err := ParseLevelAndReference(r)
	if err != nil {
		writeServiceError(w, h.logger, "invalid_request", err)
		return
	}
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	dd, err := h.reports.GetDrillDown(r.Context(), level, ref, filters)
	if err != nil {
		writeServiceError(w, h.logger, "get_drilldown_failed", err)
		return
	}
	writeSuccess(w, h.logger, dd)
}

// Machine handles GET /api/oee/machines/{machine_id}
func (h *OEEHandler) Machine(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	filters.MachineID = r.PathValue("machine_id")
	filters.LineID = ""

	rows, err := h.reports.GetMetrics(r.Context(), filters)
	if err != nil {
		writeServiceError(w, h.logger, "get_machine_failed", err)
		return
	}
	if len(rows) == 0 {
		writeServiceError(w, h.logger, "get_machine_failed",
			fmt.Errorf("%w: machine %s", apperrors.ErrNotFound, filters.MachineID))
		return
	}
	writeSuccess(w, h.logger, rows)
}

// MachineHistory handles GET /api/oee/machines/{machine_id}/history
func (h *OEEHandler) MachineHistory(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	history, err := h.reports.GetMachineHistory(r.Context(), r.PathValue("machine_id"), filters)
	if err != nil {
		writeServiceError(w, h.logger, "get_machine_history_failed", err)
		return
	}
	writeSuccess(w, h.logger, history)
}

// RecentJobCards handles GET /api/oee/job-cards/recent
func (h *OEEHandler) RecentJobCards(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	limit, err := ParseLimit(r)
	if err != nil {
		writeServiceError(w, h.logger, "invalid_request", err)
		return
	}
	records, err := h.reports.GetRecentJobCards(r.Context(), limit, filters)
	if err != nil {
		writeServiceError(w, h.logger, "get_recent_job_cards_failed", err)
		return
	}
	writeSuccess(w, h.logger, records)
}

// Dashboard handles GET /api/oee/dashboard
func (h *OEEHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	writeSuccess(w, h.logger, h.dashboard.GetDashboard(r.Context(), filters))
}
