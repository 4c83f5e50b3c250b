package eventsource

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/codigix/nobal-casting-sub004/pkg/models"
)

// Dialect captures the SQL differences between the supported ERP databases.
type Dialect struct {
	Name        string
	placeholder func(n int) string
	dateOf      func(expr string) string
	dateArg     func(t time.Time) any
}

// Param returns the n-th (1-based) bind placeholder.
func (d Dialect) Param(n int) string { return d.placeholder(n) }

// DateOf returns an expression truncating a date/datetime column to its calendar date.
func (d Dialect) DateOf(expr string) string { return d.dateOf(expr) }

// DateArg converts a calendar date to the bind value the driver expects.
func (d Dialect) DateArg(t time.Time) any { return d.dateArg(models.TruncateDate(t)) }

var (
	// PostgresDialect is used with pgx, which binds time.Time to DATE natively.
	PostgresDialect = Dialect{
		Name:        "postgres",
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		dateOf:      func(expr string) string { return "(" + expr + ")::date" },
		dateArg:     func(t time.Time) any { return t },
	}

	MySQLDialect = Dialect{
		Name:        "mysql",
		placeholder: func(int) string { return "?" },
		dateOf:      func(expr string) string { return "DATE(" + expr + ")" },
		dateArg:     func(t time.Time) any { return models.FormatDate(t) },
	}

	SQLServerDialect = Dialect{
		Name:        "mssql",
		placeholder: func(n int) string { return "@p" + strconv.Itoa(n) },
		dateOf:      func(expr string) string { return "CAST(" + expr + " AS DATE)" },
		dateArg:     func(t time.Time) any { return models.FormatDate(t) },
	}
)

// Query is a rendered statement with its bind arguments.
type Query struct {
	SQL  string
	Args []any
}

type queryBuilder struct {
	d    Dialect
	args []any
}

func (b *queryBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.Param(len(b.args))
}

// bomCycleTime is the BOM operation line time for a job card aliased jc.
const bomCycleTime = `(SELECT MAX(bo.operation_time)
		FROM bom_operation bo
		JOIN work_order wo ON wo.bom_no = bo.bom_id
		WHERE wo.wo_id = jc.work_order_id AND bo.operation_name = jc.operation)`

const jobCardColumns = `jc.job_card_id,
		COALESCE(jc.work_order_id, ''),
		COALESCE(jc.machine_id, ''),
		COALESCE(jc.operation, ''),
		jc.operation_time,
		` + bomCycleTime

// GetJobCardQuery selects one job card with its BOM fallback cycle time.
func GetJobCardQuery(d Dialect, jobCardID string) Query {
	b := &queryBuilder{d: d}
	sql := `SELECT ` + jobCardColumns + `
		FROM job_card jc
		WHERE jc.job_card_id = ` + b.bind(jobCardID)
	return Query{SQL: sql, Args: b.args}
}

// ListJobCardsByWorkOrderQuery selects the job cards of a work order.
func ListJobCardsByWorkOrderQuery(d Dialect, workOrderID string) Query {
	b := &queryBuilder{d: d}
	sql := `SELECT ` + jobCardColumns + `
		FROM job_card jc
		WHERE jc.work_order_id = ` + b.bind(workOrderID) + `
		ORDER BY jc.job_card_id`
	return Query{SQL: sql, Args: b.args}
}

// ListJobCardsByWorkstationsQuery selects the job cards assigned to any of the workstations.
func ListJobCardsByWorkstationsQuery(d Dialect, workstationIDs []string) Query {
	b := &queryBuilder{d: d}
	params := make([]string, len(workstationIDs))
	for i, id := range workstationIDs {
		params[i] = b.bind(id)
	}
	sql := `SELECT ` + jobCardColumns + `
		FROM job_card jc
		WHERE jc.machine_id IN (` + strings.Join(params, ", ") + `)
		ORDER BY jc.job_card_id`
	return Query{SQL: sql, Args: b.args}
}

// ListWorkstationsQuery selects workstations matching the filter.
func ListWorkstationsQuery(d Dialect, filter models.WorkstationFilter) Query {
	b := &queryBuilder{d: d}
	sql := `SELECT w.name,
		COALESCE(w.workstation_name, ''),
		COALESCE(w.location, ''),
		COALESCE(w.status, ''),
		COALESCE(w.workstation_type, '')
		FROM workstation w
		WHERE 1=1`
	if filter.MachineID != "" {
		sql += ` AND w.name = ` + b.bind(filter.MachineID)
	}
	if filter.LineID != "" {
		sql += ` AND w.location = ` + b.bind(filter.LineID)
	}
	sql += ` ORDER BY w.name`
	return Query{SQL: sql, Args: b.args}
}

// ListRunEventsQuery selects the time logs of a (job card, date, shift) tuple.
func ListRunEventsQuery(d Dialect, jobCardID string, logDate time.Time, shift string) Query {
	b := &queryBuilder{d: d}
	sql := `SELECT tl.job_card_id,
		COALESCE(tl.time_in_minutes, 0),
		COALESCE(tl.completed_qty, 0),
		COALESCE(tl.accepted_qty, 0)
		FROM time_log tl
		WHERE tl.job_card_id = ` + b.bind(jobCardID) + `
		AND ` + d.DateOf("tl.log_date") + ` = ` + b.bind(d.DateArg(logDate)) + `
		AND tl.shift = ` + b.bind(shift)
	return Query{SQL: sql, Args: b.args}
}

// ListDowntimeEventsQuery selects the downtime entries of a (job card, date, shift) tuple.
func ListDowntimeEventsQuery(d Dialect, jobCardID string, logDate time.Time, shift string) Query {
	b := &queryBuilder{d: d}
	sql := `SELECT de.job_card_id,
		COALESCE(de.downtime_type, ''),
		COALESCE(de.downtime_reason, ''),
		COALESCE(de.duration_minutes, 0)
		FROM downtime_entry de
		WHERE de.job_card_id = ` + b.bind(jobCardID) + `
		AND ` + d.DateOf("de.log_date") + ` = ` + b.bind(d.DateArg(logDate)) + `
		AND de.shift = ` + b.bind(shift)
	return Query{SQL: sql, Args: b.args}
}

// ListInspectionsQuery selects inspection results for an entity on a date.
func ListInspectionsQuery(d Dialect, referenceType, referenceID string, inspectionDate time.Time) Query {
	b := &queryBuilder{d: d}
	sql := `SELECT ir.reference_type,
		ir.reference_id,
		COALESCE(ir.quantity_inspected, 0),
		COALESCE(ir.quantity_passed, 0)
		FROM inspection_result ir
		WHERE ir.reference_type = ` + b.bind(referenceType) + `
		AND ir.reference_id = ` + b.bind(referenceID) + `
		AND ` + d.DateOf("ir.inspection_date") + ` = ` + b.bind(d.DateArg(inspectionDate))
	return Query{SQL: sql, Args: b.args}
}

// DowntimeReasonsQuery groups raw downtime by (reason, line, machine), longest first.
func DowntimeReasonsQuery(d Dialect, filters models.ReportFilters) Query {
	b := &queryBuilder{d: d}
	sql := `SELECT COALESCE(de.downtime_reason, ''),
		COALESCE(w.location, ''),
		w.name,
		COALESCE(w.workstation_name, ''),
		COALESCE(SUM(de.duration_minutes), 0) AS duration,
		COUNT(*)
		FROM downtime_entry de
		JOIN job_card jc ON de.job_card_id = jc.job_card_id
		JOIN workstation w ON jc.machine_id = w.name
		WHERE 1=1`
	if filters.StartDate != nil {
		sql += fmt.Sprintf(` AND %s >= %s`, d.DateOf("de.log_date"), b.bind(d.DateArg(*filters.StartDate)))
	}
	if filters.EndDate != nil {
		sql += fmt.Sprintf(` AND %s <= %s`, d.DateOf("de.log_date"), b.bind(d.DateArg(*filters.EndDate)))
	}
	if filters.MachineID != "" {
		sql += ` AND w.name = ` + b.bind(filters.MachineID)
	}
	if filters.LineID != "" {
		sql += ` AND w.location = ` + b.bind(filters.LineID)
	}
	sql += ` GROUP BY de.downtime_reason, w.location, w.name, w.workstation_name
		ORDER BY duration DESC, w.name`
	return Query{SQL: sql, Args: b.args}
}
