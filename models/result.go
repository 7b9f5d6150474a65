package models

import "time"

// ScraperResult holds the overall result of a scraping run.
type ScraperResult struct {
	RunID        string
	Mode         string
	StartTime    time.Time
	EndTime      time.Time
	WorkItems    int
	RequestCount int
	ErrorCount   int
	RecordCount  int
	FailedItems  []string
	ErrorsByType map[string]int
	Stages       []StageResult
}

// StageResult summarizes one fetch batch of a run.
type StageResult struct {
	Name      string
	Items     int
	Succeeded int
	Failed    int
	Duration  time.Duration
}
