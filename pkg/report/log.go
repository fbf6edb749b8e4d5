// Package report maintains the durable CSV record of fetch outcomes. The
// log is append-only: one row per attempt, never rewritten or truncated,
// so a later run can replay exactly the URLs that still fail.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Row status values
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// timestampFormat matches the second-resolution ISO form of the log
const timestampFormat = "2006-01-02T15:04:05"

var header = []string{
	"timestamp", "status", "attempts", "http_status",
	"media_id", "variant", "filename", "url", "error",
}

// Outcome is the result of one complete fetch attempt on one URL
type Outcome struct {
	URL        string
	Success    bool
	Attempts   int
	HTTPStatus int // last observed status, 0 when none
	MediaID    string
	Variant    string
	Filename   string
	// ErrorMessage is the failure reason, or an advisory note (such as a
	// non-fatal metadata write problem) on success
	ErrorMessage string
	Timestamp    time.Time
}

// Log is the append-only outcome log. Appends from concurrent workers are
// serialized by a single mutex so rows are never interleaved or lost.
type Log struct {
	path string
	mu   sync.Mutex
}

// NewLog creates a Log handle for the given CSV path
func NewLog(path string) *Log {
	return &Log{path: path}
}

// Path returns the log file path
func (l *Log) Path() string {
	return l.path
}

// EnsureInitialized creates the log with its header row if it does not
// exist yet. An existing log is never overwritten.
func (l *Log) EnsureInitialized() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := os.Stat(l.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("failed to create log file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write log header: %w", err)
	}
	w.Flush()

	return w.Error()
}

// Append writes one outcome row and flushes it before returning. Safe for
// concurrent callers.
func (l *Log) Append(o Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	status := StatusFailed
	if o.Success {
		status = StatusSuccess
	}

	httpStatus := ""
	if o.HTTPStatus != 0 {
		httpStatus = strconv.Itoa(o.HTTPStatus)
	}

	ts := o.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	w := csv.NewWriter(f)
	err = w.Write([]string{
		ts.Format(timestampFormat),
		status,
		strconv.Itoa(o.Attempts),
		httpStatus,
		o.MediaID,
		o.Variant,
		o.Filename,
		o.URL,
		o.ErrorMessage,
	})
	if err != nil {
		return fmt.Errorf("failed to write log row: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush log row: %w", err)
	}

	return f.Sync()
}

// FailingURLs returns the URLs whose most recent row is not a success, in
// first-seen order, de-duplicated. Folding to the last status per URL means
// a URL that failed in one run and succeeded in a later one is not retried
// again.
func (l *Log) FailingURLs() ([]string, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate short rows from interrupted runs

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	colStatus, colURL := columnIndexes(records)

	lastStatus := make(map[string]string)
	var order []string
	for i, row := range records {
		if i == 0 || len(row) <= colURL || len(row) <= colStatus {
			continue
		}
		url := row[colURL]
		if url == "" {
			continue
		}
		if _, seen := lastStatus[url]; !seen {
			order = append(order, url)
		}
		lastStatus[url] = row[colStatus]
	}

	var failing []string
	for _, url := range order {
		if lastStatus[url] != StatusSuccess {
			failing = append(failing, url)
		}
	}

	return failing, nil
}

// columnIndexes resolves the status and url columns from the header row,
// defaulting to the canonical layout
func columnIndexes(records [][]string) (int, int) {
	colStatus, colURL := 1, 7
	if len(records) == 0 {
		return colStatus, colURL
	}
	for i, name := range records[0] {
		switch name {
		case "status":
			colStatus = i
		case "url":
			colURL = i
		}
	}
	return colStatus, colURL
}
