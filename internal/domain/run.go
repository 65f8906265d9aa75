package domain

import "time"

type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

func (s RunStatus) Terminal() bool { return s == RunSuccess || s == RunFailed }

type IngestionRun struct {
	ID             string     `json:"id"`
	SourceID       int64      `json:"source_id"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Status         RunStatus  `json:"status"`
	ItemsExtracted int        `json:"items_extracted"`
	ItemsCreated   int        `json:"items_created"`
	ItemsUpdated   int        `json:"items_updated"`
	Error          string     `json:"error,omitempty"`
}

type DailyStats struct {
	Day              string `json:"day"`
	TotalEntries     int    `json:"total_entries"`
	PublishedEntries int    `json:"published_entries"`
	NewEntries       int    `json:"new_entries"`
	ActiveSources    int    `json:"active_sources"`
	ActiveContracts  int    `json:"active_contracts"`
	Runs             int    `json:"runs"`
	FailedRuns       int    `json:"failed_runs"`
}
