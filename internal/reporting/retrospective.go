// Package reporting aggregates a session's recorded reconciliation events
// into a retrospective view: how the gateway answered, how many status
// checks ran, and how the session ended.
package reporting

import (
	"time"
)

// Stages a log entry can belong to.
const (
	StageGateway     = "gateway"
	StagePoll        = "poll"
	StageRetry       = "retry"
	StageFulfillment = "fulfillment"
)

// LogEntry is one recorded event in a reconciliation session's history.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	OrderID   string    `json:"order_id"`
	Stage     string    `json:"stage"`
	Outcome   string    `json:"outcome"` // e.g. "accepted", "confirmed", "exhausted"
	Attempt   int       `json:"attempt,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// RetrospectiveReport summarizes a run of log entries.
type RetrospectiveReport struct {
	TotalEvents    int            `json:"total_events"`
	OracleAttempts int            `json:"oracle_attempts"`
	StageBreakdown map[string]int `json:"stage_breakdown"`
	OutcomeCounts  map[string]int `json:"outcome_counts"`
	ErrorBreakdown map[string]int `json:"error_breakdown"`
	DateFrom       time.Time      `json:"date_from"`
	DateTo         time.Time      `json:"date_to"`
	Duration       time.Duration  `json:"duration"`
}

// RetrospectiveReporter generates retrospective reports from log entries.
type RetrospectiveReporter struct{}

// NewRetrospectiveReporter creates a reporter.
func NewRetrospectiveReporter() *RetrospectiveReporter {
	return &RetrospectiveReporter{}
}

// Generate walks the entries and produces a report. An empty slice yields an
// empty report, not an error.
func (rr *RetrospectiveReporter) Generate(entries []LogEntry) *RetrospectiveReport {
	report := &RetrospectiveReport{
		StageBreakdown: make(map[string]int),
		OutcomeCounts:  make(map[string]int),
		ErrorBreakdown: make(map[string]int),
	}
	if len(entries) == 0 {
		return report
	}

	report.DateFrom = entries[0].Timestamp
	report.DateTo = entries[0].Timestamp
	for _, e := range entries {
		report.TotalEvents++
		if e.Timestamp.Before(report.DateFrom) {
			report.DateFrom = e.Timestamp
		}
		if e.Timestamp.After(report.DateTo) {
			report.DateTo = e.Timestamp
		}
		if e.Stage != "" {
			report.StageBreakdown[e.Stage]++
		}
		if e.Outcome != "" {
			report.OutcomeCounts[e.Outcome]++
		}
		if e.ErrorKind != "" {
			report.ErrorBreakdown[e.ErrorKind]++
		}
		if e.Stage == StagePoll && e.Attempt > report.OracleAttempts {
			report.OracleAttempts = e.Attempt
		}
	}
	report.Duration = report.DateTo.Sub(report.DateFrom)
	return report
}
