package store

import "time"

type IngestStatus string

const (
	IngestStatusRunning   IngestStatus = "running"
	IngestStatusSucceeded IngestStatus = "succeeded"
	IngestStatusFailed    IngestStatus = "failed"
)

type IngestRun struct {
	ID         string
	Table      string
	Source     string
	Mode       string
	Rows       int64
	Status     IngestStatus
	Error      *string
	StartedAt  time.Time
	FinishedAt *time.Time
}
