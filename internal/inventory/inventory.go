package inventory

import (
	"context"

	api "github.com/retirectl/retirectl/api/v1alpha1"
)

// Provider supplies the device population considered for retirement. Records
// are assembled fresh on every call; nothing is persisted between runs.
type Provider interface {
	ListDevices(ctx context.Context) ([]api.DeviceRecord, error)
}

// GroupLookup resolves an opaque group identifier to its display name. The
// eligibility filter uses the resolved names to infer cohort membership; a
// lookup failure for a single device excludes that device only and never
// fails the run.
type GroupLookup interface {
	GroupName(ctx context.Context, groupID string) (string, error)
}
