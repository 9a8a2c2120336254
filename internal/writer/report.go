package writer

import (
	"FlowForge/internal/model"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates the output directory if it does not exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory '%s': %w", dir, err)
	}
	return nil
}

// ReportWriter persists finalized reports as indented JSON files in the
// output directory. Reports are written once, at shutdown.
type ReportWriter struct {
	dir string
}

// NewReportWriter creates a report writer rooted at dir.
func NewReportWriter(dir string) *ReportWriter {
	return &ReportWriter{dir: dir}
}

// WriteReport writes one task report to the given file name.
func (w *ReportWriter) WriteReport(rep model.Report, fileName string) error {
	return w.writeJSON(fileName, rep)
}

// WriteSummary writes the run summary.
func (w *ReportWriter) WriteSummary(sum model.RunSummary) error {
	return w.writeJSON("summary.json", sum)
}

func (w *ReportWriter) writeJSON(fileName string, payload interface{}) error {
	path := filepath.Join(w.dir, fileName)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file '%s': %w", path, err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("failed to encode report to '%s': %w", path, err)
	}
	return nil
}
