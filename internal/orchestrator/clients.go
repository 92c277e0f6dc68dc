package orchestrator

import (
	"context"

	api "github.com/retirectl/retirectl/api/v1alpha1"
)

// The three external systems the teardown pipeline touches. Implementations
// wrap an already-authenticated session; connection bootstrapping is the
// caller's concern. All lookups distinguish "absent" (nil entry, nil error or
// rterrors.ErrNotFound) from "could not query" (any other error) because
// idempotent re-runs depend on telling the two apart.

// ManagementService tracks device compliance/sync state and can issue a
// remote wipe.
type ManagementService interface {
	WipeDevice(ctx context.Context, deviceID string) error
}

// ProvisioningRegistry is the zero-touch enrollment directory keyed by
// serial number. An entry must be removed for a device to be reused or
// resold.
type ProvisioningRegistry interface {
	FindBySerial(ctx context.Context, serialNumber string) (*api.RegistryEntry, error)
	RemoveEntry(ctx context.Context, entryID string) error
}

// DirectoryService holds the identity-directory object representing a
// device, distinct from its management-system record.
type DirectoryService interface {
	FindByObjectID(ctx context.Context, objectID string) (*api.DirectoryEntry, error)
	FindByProvisioningID(ctx context.Context, provisioningID string) (*api.DirectoryEntry, error)
	RemoveEntry(ctx context.Context, objectID string) error
}

// Confirmer gates the whole batch once before any device leaves PENDING.
// The CLI binds it to an interactive prompt.
type Confirmer interface {
	Confirm(ctx context.Context, deviceCount int) (bool, error)
}

// Metrics receives per-phase outcomes as they are recorded. A nil Metrics is
// valid and means no instrumentation.
type Metrics interface {
	RecordPhaseOutcome(phase api.RetirementPhase, status api.PhaseStatus)
	RecordDeviceProcessed()
}
