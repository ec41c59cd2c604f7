// Package jobs contains the scheduled jobs of the campus attendance worker.
package jobs

import (
	"sync/atomic"
	"time"
)

// RunStats is the outcome of the last run of a job.
type RunStats struct {
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
	Duration    time.Duration     `json:"duration"`
	Counters    map[string]int    `json:"counters,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// statsHolder keeps the last RunStats of a job for concurrent readers.
type statsHolder struct {
	v atomic.Value // *RunStats
}

func (h *statsHolder) store(s *RunStats) {
	s.CompletedAt = time.Now()
	s.Duration = s.CompletedAt.Sub(s.StartedAt)
	h.v.Store(s)
}

// LastRun returns the stats of the last completed run, or nil.
func (h *statsHolder) LastRun() *RunStats {
	if s, ok := h.v.Load().(*RunStats); ok {
		return s
	}
	return nil
}

func newStats() *RunStats {
	return &RunStats{
		StartedAt: time.Now(),
		Counters:  make(map[string]int),
		Details:   make(map[string]string),
	}
}
