package reconcile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SavedReport is the last reconcile result persisted between runs.
type SavedReport struct {
	Report
	Drifted   bool   `json:"drifted"`
	UpdatedAt string `json:"updated_at"`
}

// ReportStore persists the last report to disk. An empty path disables it.
type ReportStore struct {
	path string
}

func NewReportStore(path string) *ReportStore {
	return &ReportStore{path: path}
}

func (s *ReportStore) Load() (SavedReport, bool, error) {
	if s == nil || s.path == "" {
		return SavedReport{}, false, nil
	}

	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return SavedReport{}, false, nil
		}
		return SavedReport{}, false, fmt.Errorf("stat report: %w", err)
	}
	if stat.IsDir() {
		return SavedReport{}, false, fmt.Errorf("report path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return SavedReport{}, false, fmt.Errorf("read report: %w", err)
	}

	var saved SavedReport
	if err := json.Unmarshal(data, &saved); err != nil {
		return SavedReport{}, false, fmt.Errorf("parse report: %w", err)
	}
	return saved, true, nil
}

// Save writes report through a temp file and rename so readers never see a
// partial file.
func (s *ReportStore) Save(report Report) error {
	if s == nil || s.path == "" {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}

	data, err := json.Marshal(SavedReport{
		Report:    report,
		Drifted:   report.Drifted(),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write report tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}
