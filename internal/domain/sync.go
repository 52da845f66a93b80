package domain

import "time"

// SyncStats holds counters for one sync run.
type SyncStats struct {
	SourceID      string
	Attempted     int
	Inserted      int
	Updated       int
	Skipped       int
	ImageFailures int
	Published     int
	Duration      time.Duration
}
