// Package audit keeps an append-only JSONL history of scans, with
// secret values masked before anything touches disk.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sensit/sensit/internal/types"
)

// ScanRecord is one line of the audit log.
type ScanRecord struct {
	Timestamp      time.Time       `json:"timestamp"`
	ScanID         string          `json:"scan_id"`
	Target         string          `json:"target"`
	TotalSecrets   int             `json:"total_secrets"`
	SeverityCounts map[string]int  `json:"severity_counts"`
	StatusCounts   map[string]int  `json:"status_counts"`
	UnitsScanned   int             `json:"units_scanned"`
	Duration       string          `json:"duration"`
	WarningCount   int             `json:"warning_count"`
	Incomplete     bool            `json:"incomplete,omitempty"`
	TopSecrets     []SecretSummary `json:"top_secrets,omitempty"`
}

// SecretSummary carries enough to recognize a finding later without
// storing the credential itself.
type SecretSummary struct {
	Type     string `json:"type"`
	Location string `json:"location"`
	Line     int    `json:"line"`
	Severity string `json:"severity"`
	Status   string `json:"status"`
	Value    string `json:"value"` // masked
}

type Log struct {
	path string
}

// NewLog stores the history under .git when present so it never gets
// committed, falling back to a dotfile at the root.
func NewLog(root string) *Log {
	p := filepath.Join(root, ".sensit_audit.jsonl")
	gitDir := filepath.Join(root, ".git")
	if st, err := os.Stat(gitDir); err == nil && st.IsDir() {
		p = filepath.Join(gitDir, "sensit_audit.jsonl")
	}
	return &Log{path: p}
}

// Record appends one scan, owner-readable only. Masked values only.
func (l *Log) Record(rec ScanRecord) error {
	if rec.ScanID == "" {
		rec.ScanID = fmt.Sprintf("scan_%d", time.Now().Unix())
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(rec); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

// History returns past records, newest first. Unparseable lines are
// skipped rather than failing the whole read.
func (l *Log) History() ([]ScanRecord, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var records []ScanRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var rec ScanRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return records, fmt.Errorf("read audit log: %w", err)
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Delete removes the record at index (as returned by History) and
// rewrites the log.
func (l *Log) Delete(index int) error {
	records, err := l.History()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(records) {
		return fmt.Errorf("invalid index: %d", index)
	}
	records = append(records[:index], records[index+1:]...)

	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("rewrite audit log: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for i := len(records) - 1; i >= 0; i-- {
		if err := enc.Encode(records[i]); err != nil {
			return fmt.Errorf("write audit record: %w", err)
		}
	}
	return nil
}

// NewRecord summarizes a scan result for the log. At most ten secrets
// are retained, values already masked.
func NewRecord(res types.ScanResult) ScanRecord {
	sev := map[string]int{}
	for k, v := range res.BySeverity {
		sev[string(k)] = v
	}
	status := map[string]int{}
	for k, v := range res.ByStatus {
		status[string(k)] = v
	}

	top := make([]SecretSummary, 0, 10)
	for i, s := range res.Secrets {
		if i >= 10 {
			break
		}
		top = append(top, SecretSummary{
			Type:     s.Type,
			Location: s.Location,
			Line:     s.Line,
			Severity: string(s.Severity),
			Status:   string(s.Status),
			Value:    types.Mask(s.Value),
		})
	}

	return ScanRecord{
		Timestamp:      time.Now(),
		ScanID:         res.ScanID,
		Target:         res.Target,
		TotalSecrets:   len(res.Secrets),
		SeverityCounts: sev,
		StatusCounts:   status,
		UnitsScanned:   res.UnitsScanned,
		Duration:       res.Duration.String(),
		WarningCount:   len(res.Warnings),
		Incomplete:     res.Incomplete,
		TopSecrets:     top,
	}
}
