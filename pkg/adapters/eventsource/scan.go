package eventsource

import (
	"time"

	"github.com/codigix/nobal-casting-sub004/pkg/models"
)

// RowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// ScanJobCard scans a row produced by one of the job card queries.
func ScanJobCard(row RowScanner) (*models.JobCard, error) {
	var card models.JobCard
	if err := row.Scan(
		&card.ID,
		&card.WorkOrderID,
		&card.WorkstationID,
		&card.Operation,
		&card.OperationTime,
		&card.BOMOperationTime,
	); err != nil {
		return nil, err
	}
	return &card, nil
}

// ScanWorkstation scans a row produced by ListWorkstationsQuery.
func ScanWorkstation(row RowScanner) (*models.Workstation, error) {
	var ws models.Workstation
	if err := row.Scan(&ws.ID, &ws.Name, &ws.Location, &ws.Status, &ws.Type); err != nil {
		return nil, err
	}
	return &ws, nil
}

// ScanRunEvent scans a row produced by ListRunEventsQuery.
func ScanRunEvent(row RowScanner, logDate time.Time, shift string) (models.RunEvent, error) {
	ev := models.RunEvent{LogDate: models.TruncateDate(logDate), Shift: shift}
	if err := row.Scan(&ev.JobCardID, &ev.Minutes, &ev.CompletedQty, &ev.AcceptedQty); err != nil {
		return models.RunEvent{}, err
	}
	return ev, nil
}

// ScanDowntimeEvent scans a row produced by ListDowntimeEventsQuery.
func ScanDowntimeEvent(row RowScanner, logDate time.Time, shift string) (models.DowntimeEvent, error) {
	var (
		jobCardID, rawCategory, reason string
		minutes                        float64
	)
	if err := row.Scan(&jobCardID, &rawCategory, &reason, &minutes); err != nil {
		return models.DowntimeEvent{}, err
	}
	return NewDowntimeEvent(jobCardID, logDate, shift, rawCategory, reason, minutes), nil
}

// ScanInspection scans a row produced by ListInspectionsQuery.
func ScanInspection(row RowScanner, inspectionDate time.Time) (models.InspectionEvent, error) {
	ev := models.InspectionEvent{InspectionDate: models.TruncateDate(inspectionDate)}
	if err := row.Scan(&ev.ReferenceType, &ev.ReferenceID, &ev.QuantityInspected, &ev.QuantityPassed); err != nil {
		return models.InspectionEvent{}, err
	}
	return ev, nil
}

// ScanDowntimeReason scans a row produced by DowntimeReasonsQuery.
func ScanDowntimeReason(row RowScanner) (models.DowntimeReason, error) {
	var (
		r           models.DowntimeReason
		occurrences int64
	)
	if err := row.Scan(&r.Reason, &r.LineID, &r.MachineID, &r.MachineName, &r.TotalDuration, &occurrences); err != nil {
		return models.DowntimeReason{}, err
	}
	r.Occurrences = int(occurrences)
	return r, nil
}
