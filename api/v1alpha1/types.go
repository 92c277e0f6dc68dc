package v1alpha1

import (
	"time"
)

type ManagementState string

const (
	ManagementStateManaged   ManagementState = "Managed"
	ManagementStateUnmanaged ManagementState = "Unmanaged"
	ManagementStateUnknown   ManagementState = "Unknown"
)

type ComplianceState string

const (
	ComplianceStateCompliant    ComplianceState = "Compliant"
	ComplianceStateNonCompliant ComplianceState = "NonCompliant"
	ComplianceStateUnknown      ComplianceState = "Unknown"
)

// DeviceRecord is the identity and state snapshot of one managed device,
// assembled fresh from the inventory provider on every run. SerialNumber is
// the stable join key across the management system, the provisioning registry
// and the directory service; a device without one cannot be processed.
type DeviceRecord struct {
	DeviceID               string          `json:"deviceId"`
	SerialNumber           string          `json:"serialNumber"`
	Model                  string          `json:"model,omitempty"`
	Manufacturer           string          `json:"manufacturer,omitempty"`
	OwnerPrincipal         *string         `json:"ownerPrincipal,omitempty"`
	ManagementState        ManagementState `json:"managementState,omitempty"`
	ComplianceState        ComplianceState `json:"complianceState,omitempty"`
	LastSyncTime           *time.Time      `json:"lastSyncTime,omitempty"`
	FreeStorageBytes       int64           `json:"freeStorageBytes,omitempty"`
	TotalStorageBytes      int64           `json:"totalStorageBytes,omitempty"`
	ProvisioningRegistryID *string         `json:"provisioningRegistryId,omitempty"`
	DirectoryObjectID      *string         `json:"directoryObjectId,omitempty"`
	GroupMemberships       []string        `json:"groupMemberships,omitempty"`
}

// EligibilityCriteria configures which devices are retirement candidates.
type EligibilityCriteria struct {
	CohortTags                          []string `json:"cohortTags,omitempty"`
	ModelsToRetire                      []string `json:"modelsToRetire,omitempty"`
	ModelsToKeep                        []string `json:"modelsToKeep,omitempty"`
	IncludeOtherCohortsForRetiredModels bool     `json:"includeOtherCohortsForRetiredModels,omitempty"`
	MinimumFreeStorageBytesForSafeWipe  int64    `json:"minimumFreeStorageBytesForSafeWipe,omitempty"`
	MaxInactivityDays                   int      `json:"maxInactivityDays,omitempty"`
}

type Decision string

const (
	DecisionKeep   Decision = "Keep"
	DecisionDelete Decision = "Delete"
	DecisionUnset  Decision = "Unset"
)

// DecisionRecord is one row of the human-reviewable decision artifact.
// Passthrough holds informational columns verbatim; they carry no semantics.
type DecisionRecord struct {
	SerialNumber string            `json:"serialNumber"`
	Decision     Decision          `json:"decision"`
	Passthrough  map[string]string `json:"passthrough,omitempty"`
}

type ExclusionReason string

const (
	ExclusionReasonModelKept               ExclusionReason = "ModelKept"
	ExclusionReasonModelNotTargeted        ExclusionReason = "ModelNotTargeted"
	ExclusionReasonNotInCohort             ExclusionReason = "NotInCohort"
	ExclusionReasonInsufficientFreeStorage ExclusionReason = "InsufficientFreeStorage"
	ExclusionReasonStaleLastSync           ExclusionReason = "StaleLastSync"
	ExclusionReasonMissingSerialNumber     ExclusionReason = "MissingSerialNumber"
	ExclusionReasonCohortLookupFailed      ExclusionReason = "CohortLookupFailed"
)

// IneligibleDevice records a device excluded by the eligibility filter along
// with the reason, so callers can report why a device was left out instead of
// silently dropping it.
type IneligibleDevice struct {
	Device DeviceRecord    `json:"device"`
	Reason ExclusionReason `json:"reason"`
	Detail string          `json:"detail,omitempty"`
}

type RetirementPhase string

const (
	RetirementPhaseWipe                   RetirementPhase = "Wipe"
	RetirementPhaseRemoveFromProvisioning RetirementPhase = "RemoveFromProvisioning"
	RetirementPhaseRemoveFromDirectory    RetirementPhase = "RemoveFromDirectory"
)

type PhaseStatus string

const (
	PhaseStatusSuccess  PhaseStatus = "Success"
	PhaseStatusFailed   PhaseStatus = "Failed"
	PhaseStatusSkipped  PhaseStatus = "Skipped"
	PhaseStatusNotFound PhaseStatus = "NotFound"
)

// RetirementPhaseOutcome is the result of one teardown phase for one device.
// Exactly one outcome exists per (device, phase) per run; phases not attempted
// because of gating policy are recorded as Skipped, never omitted.
type RetirementPhaseOutcome struct {
	Phase       RetirementPhase `json:"phase"`
	Status      PhaseStatus     `json:"status"`
	ErrorDetail *string         `json:"errorDetail,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

type OverallStatus string

const (
	OverallStatusDone    OverallStatus = "Done"
	OverallStatusPartial OverallStatus = "Partial"
	OverallStatusFailed  OverallStatus = "Failed"
	OverallStatusDryRun  OverallStatus = "DryRun"
)

// RetirementResult aggregates one device's phase outcomes for a single run.
// It is owned by the orchestrator and read-only to consumers; once the audit
// artifact is written it is not retained.
type RetirementResult struct {
	DeviceID     string                   `json:"deviceId"`
	SerialNumber string                   `json:"serialNumber"`
	Model        string                   `json:"model,omitempty"`
	Outcomes     []RetirementPhaseOutcome `json:"outcomes"`
	Overall      OverallStatus            `json:"overall,omitempty"`
}

// RetirementConfig controls which teardown phases run and how.
type RetirementConfig struct {
	DryRun                   bool `json:"dryRun,omitempty"`
	RemoveFromProvisioning   bool `json:"removeFromProvisioning,omitempty"`
	RemoveFromDirectory      bool `json:"removeFromDirectory,omitempty"`
	GateCleanupOnWipeSuccess bool `json:"gateCleanupOnWipeSuccess,omitempty"`
	ConfirmationRequired     bool `json:"confirmationRequired,omitempty"`
	// Concurrency bounds the worker pool width; 1 means sequential.
	Concurrency int `json:"concurrency,omitempty"`
}

// PhaseCounts holds per-status tallies for one phase across a run.
type PhaseCounts struct {
	Success  int `json:"success"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	NotFound int `json:"notFound"`
}

// AuditSummary is the durable record of one retirement run: per-phase counts,
// per-device entries with their derived overall status, and the devices the
// eligibility filter excluded with reasons.
type AuditSummary struct {
	RunID       string                          `json:"runId"`
	StartedAt   time.Time                       `json:"startedAt"`
	CompletedAt time.Time                       `json:"completedAt"`
	Config      RetirementConfig                `json:"config"`
	PhaseCounts map[RetirementPhase]PhaseCounts `json:"phaseCounts"`
	Devices     []RetirementResult              `json:"devices"`
	Excluded    []IneligibleDevice              `json:"excluded,omitempty"`
	// NoDecision lists serial numbers that were auto-selected but carried no
	// decision in the supplied artifact.
	NoDecision []string `json:"noDecision,omitempty"`
}

// DevicesFailed reports how many devices ended the run with overall status
// Failed; the CLI exit code is derived from it.
func (s *AuditSummary) DevicesFailed() int {
	count := 0
	for _, d := range s.Devices {
		if d.Overall == OverallStatusFailed {
			count++
		}
	}
	return count
}

// RegistryEntry is a provisioning-registry record for a device, keyed by the
// registry's own identifier with the serial number as the cross-system join.
type RegistryEntry struct {
	EntryID      string `json:"entryId"`
	SerialNumber string `json:"serialNumber"`
	// ProvisioningDeviceID is the registry-assigned device identifier used as
	// the fallback key for directory lookups.
	ProvisioningDeviceID string `json:"provisioningDeviceId,omitempty"`
}

// DirectoryEntry is the identity-directory object representing a device,
// distinct from its management-system record.
type DirectoryEntry struct {
	ObjectID     string `json:"objectId"`
	DisplayName  string `json:"displayName,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
}
