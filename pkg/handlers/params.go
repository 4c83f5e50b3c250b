package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/codigix/nobal-casting-sub004/pkg/apperrors"
	"github.com/codigix/nobal-casting-sub004/pkg/models"
)

// maxLimit caps the limit query parameter.
const maxLimit = 500

// ParseReportFilters reads startDate, endDate, machineId, lineId and shift
// from the query string. Absent parameters leave the filter unconstrained.
func ParseReportFilters(r *http.Request) (models.ReportFilters, error) {
	q := r.URL.Query()
	var filters models.ReportFilters

	start, err := parseDateParam(q.Get("startDate"), "startDate")
	if err != nil {
		return filters, err
	}
	end, err := parseDateParam(q.Get("endDate"), "endDate")
	if err != nil {
		return filters, err
	}
	if start != nil && end != nil && start.After(*end) {
		return filters, fmt.Errorf("%w: startDate is after endDate", apperrors.ErrInvalidDate)
	}

	filters.StartDate = start
	filters.EndDate = end
	filters.MachineID = strings.TrimSpace(q.Get("machineId"))
	filters.LineID = strings.TrimSpace(q.Get("lineId"))
	filters.Shift = strings.TrimSpace(q.Get("shift"))
	return filters, nil
}

func parseDateParam(raw, name string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &d, nil
}

// ParseLimit reads the limit query parameter. Zero means the service default.
func ParseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", apperrors.ErrInvalidArgument)
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}

// ParseLevelAndReference reads the {level} and {reference_id} path values.
func ParseLevelAndReference(r *http.Request) (models.MetricLevel, string, error) {
	level, err := models.ParseMetricLevel(r.PathValue("level"))
	if err != nil {
		return "", "", err
	}
	ref := strings.TrimSpace(r.PathValue("reference_id"))
	if ref == "" {
		return "", "", fmt.Errorf("%w: reference_id is required", apperrors.ErrInvalidArgument)
	}
	return level, ref, nil
}
