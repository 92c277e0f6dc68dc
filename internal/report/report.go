package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	api "github.com/retirectl/retirectl/api/v1alpha1"
)

// WriteJSON renders the audit summary as the canonical JSON artifact.
func WriteJSON(w io.Writer, summary *api.AuditSummary) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(summary); err != nil {
		return fmt.Errorf("encoding audit summary: %w", err)
	}
	return nil
}

// ReadJSON loads an audit artifact previously written by WriteJSON.
func ReadJSON(r io.Reader) (*api.AuditSummary, error) {
	summary := &api.AuditSummary{}
	if err := json.NewDecoder(r).Decode(summary); err != nil {
		return nil, fmt.Errorf("decoding audit summary: %w", err)
	}
	return summary, nil
}

var auditCSVHeader = []string{
	"runId", "serialNumber", "deviceId", "model", "phase", "status", "errorDetail", "timestamp", "overall",
}

// WriteCSV renders the audit as one row per (device, phase).
func WriteCSV(w io.Writer, summary *api.AuditSummary) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(auditCSVHeader); err != nil {
		return fmt.Errorf("writing audit header: %w", err)
	}
	for _, device := range summary.Devices {
		for _, outcome := range device.Outcomes {
			detail := ""
			if outcome.ErrorDetail != nil {
				detail = *outcome.ErrorDetail
			}
			row := []string{
				summary.RunID,
				device.SerialNumber,
				device.DeviceID,
				device.Model,
				string(outcome.Phase),
				string(outcome.Status),
				detail,
				outcome.Timestamp.UTC().Format(time.RFC3339),
				string(device.Overall),
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("writing audit row for %s: %w", device.SerialNumber, err)
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// SaveArtifact writes the JSON audit artifact into dir and returns its path.
// The artifact is the durable record of the run; the path is always printed
// by the CLI regardless of outcome.
func SaveArtifact(dir string, summary *api.AuditSummary) (string, error) {
	if err := os.MkdirAll(dir, os.FileMode(0755)); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("retirement-audit-%s.json", summary.RunID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("creating audit artifact: %w", err)
	}
	defer file.Close()
	if err := WriteJSON(file, summary); err != nil {
		return "", err
	}
	return path, nil
}
