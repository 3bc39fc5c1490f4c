// Package history keeps the durable record of job executions and the
// statistics derived from it.
package history

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// MaxRecords bounds the in-memory mirror and the on-disk array
	MaxRecords = 1000

	// MaxOutputChars bounds the stored output slice per record
	MaxOutputChars = 1000
)

// Record is one immutable execution event.
type Record struct {
	JobName              string  `json:"job_name"`
	Timestamp            string  `json:"timestamp"` // RFC3339 UTC
	Success              bool    `json:"success"`
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
	Output               string  `json:"output"`
}

// Failure is the projection of a failed record exposed by RecentFailures.
type Failure struct {
	JobName   string `json:"job_name"`
	Timestamp string `json:"timestamp"`
	Output    string `json:"output"`
}

// Stats aggregates execution outcomes. AvgExecutionTime is the mean
// over successful records only, zero when there are none.
type Stats struct {
	Total            int     `json:"total"`
	Successful       int     `json:"successful"`
	Failed           int     `json:"failed"`
	SuccessRate      float64 `json:"success_rate"`
	AvgExecutionTime float64 `json:"avg_execution_time"`
}

// JobStats is Stats filtered to a single job, plus its last execution time.
type JobStats struct {
	Stats
	LastExecution string `json:"last_execution"`
}

// History owns the execution log file and its in-memory mirror. The
// mirror holds the MaxRecords most recent entries in wall-clock order;
// the file is rewritten after every append.
type History struct {
	file   string
	logger *zap.SugaredLogger

	mu      sync.Mutex
	records []Record
	total   int // appends ever observed, not capped
}

// NewHistory creates a history over file, loading any existing records.
// A missing or unparseable file starts the mirror empty.
func NewHistory(file string, log *zap.SugaredLogger) *History {
	h := &History{file: file, logger: log}

	blob, err := os.ReadFile(file)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnw("Failed to read history file, starting empty", "file", file, "error", err)
		}
		return h
	}

	var records []Record
	if err := json.Unmarshal(blob, &records); err != nil {
		log.Warnw("Failed to parse history file, starting empty", "file", file, "error", err)
		return h
	}

	if len(records) > MaxRecords {
		records = records[len(records)-MaxRecords:]
	}
	h.records = records
	h.total = len(records)
	return h
}

// Add appends one execution record, truncating output to MaxOutputChars
// (final three characters become "..." when truncated), and writes the
// file. Write failures warn but never abort job execution.
func (h *History) Add(jobName string, success bool, seconds float64, output string) Record {
	record := Record{
		JobName:              jobName,
		Timestamp:            time.Now().UTC().Format(time.RFC3339),
		Success:              success,
		ExecutionTimeSeconds: seconds,
		Output:               truncateOutput(output),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, record)
	h.total++
	if len(h.records) > MaxRecords {
		h.records = h.records[len(h.records)-MaxRecords:]
	}

	if err := h.write(); err != nil {
		h.logger.Warnw("Failed to write history file", "file", h.file, "error", err)
	}
	return record
}

// Total returns the number of appends observed, including records that
// have since been dropped by the in-memory cap.
func (h *History) Total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// Len returns the current in-memory record count (≤ MaxRecords).
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Records returns a copy of the in-memory mirror, oldest first.
func (h *History) Records() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

// RecentFailures returns the last n failed records, most recent last.
func (h *History) RecentFailures(n int) []Failure {
	h.mu.Lock()
	defer h.mu.Unlock()

	var failures []Failure
	for _, r := range h.records {
		if !r.Success {
			failures = append(failures, Failure{
				JobName:   r.JobName,
				Timestamp: r.Timestamp,
				Output:    r.Output,
			})
		}
	}
	if len(failures) > n {
		failures = failures[len(failures)-n:]
	}
	return failures
}

// Stats returns aggregate statistics across all in-memory records.
func (h *History) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return computeStats(h.records)
}

// StatsFor returns statistics filtered to one job, with the timestamp
// of its most recent execution.
func (h *History) StatsFor(jobName string) JobStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	var filtered []Record
	last := ""
	for _, r := range h.records {
		if r.JobName == jobName {
			filtered = append(filtered, r)
			last = r.Timestamp
		}
	}
	return JobStats{Stats: computeStats(filtered), LastExecution: last}
}

func computeStats(records []Record) Stats {
	stats := Stats{Total: len(records)}
	var successTime float64
	for _, r := range records {
		if r.Success {
			stats.Successful++
			successTime += r.ExecutionTimeSeconds
		} else {
			stats.Failed++
		}
	}
	if stats.Total > 0 {
		rate := float64(stats.Successful) / float64(stats.Total) * 100
		stats.SuccessRate = math.Round(rate*100) / 100
	}
	if stats.Successful > 0 {
		stats.AvgExecutionTime = successTime / float64(stats.Successful)
	}
	return stats
}

func truncateOutput(output string) string {
	runes := []rune(output)
	if len(runes) <= MaxOutputChars {
		return output
	}
	return string(runes[:MaxOutputChars-3]) + "..."
}

// write persists the mirror atomically. Caller holds mu.
func (h *History) write() error {
	blob, err := json.MarshalIndent(h.records, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(h.file), ".history-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, h.file)
}
