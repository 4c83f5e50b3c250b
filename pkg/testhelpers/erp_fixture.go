// Package testhelpers provides utilities for testing OEE engine components.
package testhelpers

import (
	"context"
	"testing"
	"time"

	"github.com/codigix/nobal-casting-sub004/pkg/database"
)

// ERPFixtureSchema mirrors the subset of ERP tables the event source reads.
const ERPFixtureSchema = `
CREATE TABLE IF NOT EXISTS workstation (
    name VARCHAR(50) PRIMARY KEY,
    workstation_name VARCHAR(100),
    location VARCHAR(100),
    status VARCHAR(30),
    workstation_type VARCHAR(50)
);

CREATE TABLE IF NOT EXISTS work_order (
    wo_id VARCHAR(50) PRIMARY KEY,
    bom_no VARCHAR(50)
);

CREATE TABLE IF NOT EXISTS bom_operation (
    id SERIAL PRIMARY KEY,
    bom_id VARCHAR(50) NOT NULL,
    operation_name VARCHAR(100) NOT NULL,
    operation_time NUMERIC(10,4)
);

CREATE TABLE IF NOT EXISTS job_card (
    job_card_id VARCHAR(50) PRIMARY KEY,
    work_order_id VARCHAR(50),
    machine_id VARCHAR(50),
    operation VARCHAR(100),
    operation_time NUMERIC(10,4)
);

CREATE TABLE IF NOT EXISTS time_log (
    id SERIAL PRIMARY KEY,
    job_card_id VARCHAR(50) NOT NULL,
    log_date DATE NOT NULL,
    shift VARCHAR(20) NOT NULL,
    time_in_minutes NUMERIC(10,2),
    completed_qty NUMERIC(18,6),
    accepted_qty NUMERIC(18,6)
);

CREATE TABLE IF NOT EXISTS downtime_entry (
    id SERIAL PRIMARY KEY,
    job_card_id VARCHAR(50) NOT NULL,
    log_date DATE NOT NULL,
    shift VARCHAR(20) NOT NULL,
    downtime_type VARCHAR(100),
    downtime_reason VARCHAR(255),
    duration_minutes NUMERIC(10,2)
);

CREATE TABLE IF NOT EXISTS inspection_result (
    id SERIAL PRIMARY KEY,
    reference_type VARCHAR(30) NOT NULL,
    reference_id VARCHAR(50) NOT NULL,
    inspection_date TIMESTAMP NOT NULL,
    quantity_inspected NUMERIC(18,6),
    quantity_passed NUMERIC(18,6)
);
`

// ERPFixture inserts ERP rows for integration tests.
type ERPFixture struct {
	t  *testing.T
	db database.Querier
}

// NewERPFixture returns a fixture writer bound to db.
func NewERPFixture(t *testing.T, db database.Querier) *ERPFixture {
	return &ERPFixture{t: t, db: db}
}

func (f *ERPFixture) exec(sql string, args ...any) {
	f.t.Helper()
	if _, err := f.db.Exec(context.Background(), sql, args...); err != nil {
		f.t.Fatalf("fixture insert failed: %v", err)
	}
}

func (f *ERPFixture) Workstation(id, name, location, status string) {
	f.t.Helper()
	f.exec(`INSERT INTO workstation (name, workstation_name, location, status, workstation_type)
		VALUES ($1, $2, $3, $4, 'machine')`, id, name, location, status)
}

func (f *ERPFixture) WorkOrder(id, bomID string) {
	f.t.Helper()
	f.exec(`INSERT INTO work_order (wo_id, bom_no) VALUES ($1, $2)`, id, bomID)
}

func (f *ERPFixture) BOMOperation(bomID, operation string, minutes float64) {
	f.t.Helper()
	f.exec(`INSERT INTO bom_operation (bom_id, operation_name, operation_time) VALUES ($1, $2, $3)`,
		bomID, operation, minutes)
}

// JobCard inserts a job card; a nil operationTime leaves the column NULL.
func (f *ERPFixture) JobCard(id, workOrderID, machineID, operation string, operationTime *float64) {
	f.t.Helper()
	f.exec(`INSERT INTO job_card (job_card_id, work_order_id, machine_id, operation, operation_time)
		VALUES ($1, $2, $3, $4, $5)`, id, workOrderID, machineID, operation, operationTime)
}

func (f *ERPFixture) TimeLog(jobCardID string, date time.Time, shift string, minutes, completed, accepted float64) {
	f.t.Helper()
	f.exec(`INSERT INTO time_log (job_card_id, log_date, shift, time_in_minutes, completed_qty, accepted_qty)
		VALUES ($1, $2, $3, $4, $5, $6)`, jobCardID, date, shift, minutes, completed, accepted)
}

func (f *ERPFixture) Downtime(jobCardID string, date time.Time, shift, downtimeType, reason string, minutes float64) {
	f.t.Helper()
	f.exec(`INSERT INTO downtime_entry (job_card_id, log_date, shift, downtime_type, downtime_reason, duration_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)`, jobCardID, date, shift, downtimeType, reason, minutes)
}

func (f *ERPFixture) Inspection(jobCardID string, at time.Time, inspected, passed float64) {
	f.t.Helper()
	f.exec(`INSERT INTO inspection_result (reference_type, reference_id, inspection_date, quantity_inspected, quantity_passed)
		VALUES ('job_card', $1, $2, $3, $4)`, jobCardID, at, inspected, passed)
}

// ClearEvents deletes every run, downtime and inspection row of a job card.
func (f *ERPFixture) ClearEvents(jobCardID string) {
	f.t.Helper()
	f.exec(`DELETE FROM time_log WHERE job_card_id = $1`, jobCardID)
	f.exec(`DELETE FROM downtime_entry WHERE job_card_id = $1`, jobCardID)
	f.exec(`DELETE FROM inspection_result WHERE reference_type = 'job_card' AND reference_id = $1`, jobCardID)
}
