package artifact

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	api "github.com/retirectl/retirectl/api/v1alpha1"
)

// reviewHeader is the column layout of the export-for-review artifact. The
// first two columns are the ones Ingest requires; the rest are informational
// and ride along untouched when the reviewed file is re-ingested.
var reviewHeader = []string{
	SerialColumn,
	DecisionColumn,
	"deviceId",
	"model",
	"manufacturer",
	"owner",
	"lastSyncTime",
	"freeStorage",
	"exclusionReason",
}

// ExportForReview writes the reviewer CSV pre-populated from the eligibility
// filter's output. Candidate rows carry an empty decision cell for the
// reviewer to fill in; excluded rows are included with their exclusion reason
// so the reviewer can overrule the filter by setting Delete.
func ExportForReview(w io.Writer, eligible []api.DeviceRecord, excluded []api.IneligibleDevice) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(reviewHeader); err != nil {
		return fmt.Errorf("writing review header: %w", err)
	}
	for _, device := range eligible {
		if err := writer.Write(reviewRow(device, "")); err != nil {
			return fmt.Errorf("writing review row for %s: %w", device.SerialNumber, err)
		}
	}
	for _, entry := range excluded {
		if err := writer.Write(reviewRow(entry.Device, string(entry.Reason))); err != nil {
			return fmt.Errorf("writing review row for %s: %w", entry.Device.SerialNumber, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func reviewRow(device api.DeviceRecord, exclusionReason string) []string {
	owner := ""
	if device.OwnerPrincipal != nil {
		owner = *device.OwnerPrincipal
	}
	lastSync := ""
	if device.LastSyncTime != nil {
		lastSync = device.LastSyncTime.UTC().Format(time.RFC3339)
	}
	freeStorage := ""
	if device.TotalStorageBytes > 0 {
		freeStorage = humanize.IBytes(uint64(device.FreeStorageBytes))
	}
	return []string{
		device.SerialNumber,
		"", // decision, left to the reviewer
		device.DeviceID,
		device.Model,
		device.Manufacturer,
		owner,
		lastSync,
		freeStorage,
		exclusionReason,
	}
}
