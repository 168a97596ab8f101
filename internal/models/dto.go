package models

import "time"

type SubmitResponse struct {
	RecordID   string  `json:"record_id"`
	Verdict    Verdict `json:"verdict"`
	Suspicious bool    `json:"suspicious"`
}

type SearchReportsResponse struct {
	Query   string         `json:"query"`
	Records []LedgerRecord `json:"records"`
	Total   int            `json:"total"`
}

type HealthCheckResponse struct {
	Status         string    `json:"status"`
	Ledger         bool      `json:"ledger"`
	Window         bool      `json:"window"`
	ActiveWorkers  int       `json:"active_workers"`
	QueueLength    int       `json:"queue_length"`
	TotalProcessed int       `json:"total_processed"`
	FailedJobs     int       `json:"failed_jobs"`
	Uptime         string    `json:"uptime"`
	Timestamp      time.Time `json:"timestamp"`
}
