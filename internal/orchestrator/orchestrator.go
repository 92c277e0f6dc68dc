package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	api "github.com/retirectl/retirectl/api/v1alpha1"
	"github.com/retirectl/retirectl/internal/rterrors"
	"github.com/retirectl/retirectl/pkg/log"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	dryRunDetail   = "dry-run"
	canceledDetail = "canceled"
	gatedDetail    = "skipped because the wipe did not succeed"
)

// Orchestrator drives the ordered teardown pipeline for a batch of devices:
//
//	PENDING -> WIPE -> (PROVISIONING) -> (DIRECTORY) -> DONE
//
// Devices are independent of each other; one device's failure never aborts
// the batch. Phases within one device are strictly ordered because the
// directory phase reuses identifier resolution from the provisioning phase
// and the gating policy depends on the wipe outcome.
type Orchestrator struct {
	log        logrus.FieldLogger
	management ManagementService
	registry   ProvisioningRegistry
	directory  DirectoryService
	confirmer  Confirmer
	metrics    Metrics
}

func NewOrchestrator(logger logrus.FieldLogger, management ManagementService, registry ProvisioningRegistry, directory DirectoryService) *Orchestrator {
	return &Orchestrator{
		log:        logger,
		management: management,
		registry:   registry,
		directory:  directory,
	}
}

// WithConfirmer wires the batch confirmation gate; required when a config
// sets ConfirmationRequired.
func (o *Orchestrator) WithConfirmer(confirmer Confirmer) *Orchestrator {
	o.confirmer = confirmer
	return o
}

func (o *Orchestrator) WithMetrics(metrics Metrics) *Orchestrator {
	o.metrics = metrics
	return o
}

// ValidateConfig rejects conflicting configurations before any device is
// touched.
func (o *Orchestrator) ValidateConfig(config api.RetirementConfig) error {
	if config.GateCleanupOnWipeSuccess && !config.RemoveFromProvisioning && !config.RemoveFromDirectory {
		return fmt.Errorf("%w: gateCleanupOnWipeSuccess is set but no cleanup phase is enabled", rterrors.ErrConfigInvalid)
	}
	if config.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency must not be negative", rterrors.ErrConfigInvalid)
	}
	if config.ConfirmationRequired && !config.DryRun && o.confirmer == nil {
		return rterrors.ErrConfirmerNotWired
	}
	return nil
}

// Retire executes the teardown pipeline for every device and returns one
// result per device in input order. The returned error is non-nil only for
// whole-batch conditions (invalid config, declined confirmation); per-device
// failures are reported inside the results.
func (o *Orchestrator) Retire(ctx context.Context, devices []api.DeviceRecord, config api.RetirementConfig) ([]api.RetirementResult, error) {
	if err := o.ValidateConfig(config); err != nil {
		return nil, err
	}

	// single gate for the whole batch; dry-run has nothing to confirm
	if config.ConfirmationRequired && !config.DryRun {
		confirmed, err := o.confirmer.Confirm(ctx, len(devices))
		if err != nil {
			return nil, fmt.Errorf("requesting batch confirmation: %w", err)
		}
		if !confirmed {
			return nil, rterrors.ErrConfirmationDeclined
		}
	}

	width := config.Concurrency
	if width == 0 {
		width = 1
	}

	results := make([]api.RetirementResult, len(devices))
	sem := semaphore.NewWeighted(int64(width))
	var wg sync.WaitGroup
	for i, device := range devices {
		if err := sem.Acquire(ctx, 1); err != nil {
			// batch canceled before this device left PENDING; it still gets
			// one outcome per enabled phase so nothing is silently omitted
			for j := i; j < len(devices); j++ {
				results[j] = o.canceledResult(devices[j], config)
			}
			break
		}
		wg.Add(1)
		go func(i int, device api.DeviceRecord) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = o.retireDevice(ctx, device, config)
			if o.metrics != nil {
				o.metrics.RecordDeviceProcessed()
			}
		}(i, device)
	}
	wg.Wait()
	return results, nil
}

// enabledPhases returns the phase plan in execution order. Wipe is always
// part of the plan; the cleanup phases are opt-in.
func enabledPhases(config api.RetirementConfig) []api.RetirementPhase {
	phases := []api.RetirementPhase{api.RetirementPhaseWipe}
	if config.RemoveFromProvisioning {
		phases = append(phases, api.RetirementPhaseRemoveFromProvisioning)
	}
	if config.RemoveFromDirectory {
		phases = append(phases, api.RetirementPhaseRemoveFromDirectory)
	}
	return phases
}

// retireDevice runs the phase pipeline for one device. Cancellation is
// cooperative at phase granularity: a phase that has started always runs to
// completion (interrupting an external removal could leave the system in a
// half-removed state), and phases not yet started are recorded Skipped.
func (o *Orchestrator) retireDevice(ctx context.Context, device api.DeviceRecord, config api.RetirementConfig) api.RetirementResult {
	logger := log.WithDevice(device.SerialNumber, o.log)
	result := api.RetirementResult{
		DeviceID:     device.DeviceID,
		SerialNumber: device.SerialNumber,
		Model:        device.Model,
	}

	if config.DryRun {
		for _, phase := range enabledPhases(config) {
			o.record(&result, phase, api.PhaseStatusSkipped, lo.ToPtr(dryRunDetail))
		}
		logger.Infof("dry-run: phase plan is %v", enabledPhases(config))
		return result
	}

	if ctx.Err() != nil {
		return o.canceledResult(device, config)
	}

	// external calls run on an uncancellable context: once a phase starts it
	// finishes, per the half-removed-state rule above
	callCtx := context.WithoutCancel(ctx)

	wipeOK := o.runWipePhase(callCtx, logger, device, &result)
	gated := config.GateCleanupOnWipeSuccess && !wipeOK

	// the directory phase falls back to the provisioning-assigned identifier
	// resolved while handling the registry
	provisioningID := ""

	if config.RemoveFromProvisioning {
		switch {
		case gated:
			o.record(&result, api.RetirementPhaseRemoveFromProvisioning, api.PhaseStatusSkipped, lo.ToPtr(gatedDetail))
		case ctx.Err() != nil:
			o.record(&result, api.RetirementPhaseRemoveFromProvisioning, api.PhaseStatusSkipped, lo.ToPtr(canceledDetail))
		default:
			provisioningID = o.runProvisioningPhase(callCtx, logger, device, &result)
		}
	}

	if config.RemoveFromDirectory {
		switch {
		case gated:
			o.record(&result, api.RetirementPhaseRemoveFromDirectory, api.PhaseStatusSkipped, lo.ToPtr(gatedDetail))
		case ctx.Err() != nil:
			o.record(&result, api.RetirementPhaseRemoveFromDirectory, api.PhaseStatusSkipped, lo.ToPtr(canceledDetail))
		default:
			o.runDirectoryPhase(callCtx, logger, device, provisioningID, &result)
		}
	}
	return result
}

func (o *Orchestrator) canceledResult(device api.DeviceRecord, config api.RetirementConfig) api.RetirementResult {
	result := api.RetirementResult{
		DeviceID:     device.DeviceID,
		SerialNumber: device.SerialNumber,
		Model:        device.Model,
	}
	for _, phase := range enabledPhases(config) {
		o.record(&result, phase, api.PhaseStatusSkipped, lo.ToPtr(canceledDetail))
	}
	return result
}

// runWipePhase issues the remote wipe and reports whether it succeeded.
func (o *Orchestrator) runWipePhase(ctx context.Context, logger logrus.FieldLogger, device api.DeviceRecord, result *api.RetirementResult) bool {
	if err := o.management.WipeDevice(ctx, device.DeviceID); err != nil {
		logger.WithError(err).Error("remote wipe failed")
		o.record(result, api.RetirementPhaseWipe, api.PhaseStatusFailed, lo.ToPtr(err.Error()))
		return false
	}
	logger.Info("remote wipe issued")
	o.record(result, api.RetirementPhaseWipe, api.PhaseStatusSuccess, nil)
	return true
}

// runProvisioningPhase removes the device's zero-touch provisioning entry,
// looked up by serial number. It returns the provisioning-assigned device
// identifier when one was resolved, for use by the directory phase.
func (o *Orchestrator) runProvisioningPhase(ctx context.Context, logger logrus.FieldLogger, device api.DeviceRecord, result *api.RetirementResult) string {
	entry, err := o.registry.FindBySerial(ctx, device.SerialNumber)
	if err != nil && !errors.Is(err, rterrors.ErrNotFound) {
		logger.WithError(err).Error("provisioning registry lookup failed")
		o.record(result, api.RetirementPhaseRemoveFromProvisioning, api.PhaseStatusFailed, lo.ToPtr(err.Error()))
		return ""
	}
	if entry == nil {
		// already gone; recorded NotFound so an idempotent re-run stays clean
		logger.Info("no provisioning registry entry")
		o.record(result, api.RetirementPhaseRemoveFromProvisioning, api.PhaseStatusNotFound, nil)
		return ""
	}
	if err := o.registry.RemoveEntry(ctx, entry.EntryID); err != nil {
		logger.WithError(err).Error("provisioning registry removal failed")
		o.record(result, api.RetirementPhaseRemoveFromProvisioning, api.PhaseStatusFailed, lo.ToPtr(err.Error()))
		return entry.ProvisioningDeviceID
	}
	logger.Info("removed from provisioning registry")
	o.record(result, api.RetirementPhaseRemoveFromProvisioning, api.PhaseStatusSuccess, nil)
	return entry.ProvisioningDeviceID
}

// runDirectoryPhase removes the device's directory object, preferring the
// directory object id from inventory and falling back to resolution by the
// provisioning-assigned identifier.
func (o *Orchestrator) runDirectoryPhase(ctx context.Context, logger logrus.FieldLogger, device api.DeviceRecord, provisioningID string, result *api.RetirementResult) {
	var entry *api.DirectoryEntry
	var err error
	switch {
	case device.DirectoryObjectID != nil:
		entry, err = o.directory.FindByObjectID(ctx, *device.DirectoryObjectID)
	case provisioningID == "":
		provisioningID, err = o.resolveProvisioningID(ctx, device)
		if err != nil {
			logger.WithError(err).Error("registry lookup for directory resolution failed")
			o.record(result, api.RetirementPhaseRemoveFromDirectory, api.PhaseStatusFailed, lo.ToPtr(err.Error()))
			return
		}
		if provisioningID == "" {
			logger.Info("no directory identifier to resolve")
			o.record(result, api.RetirementPhaseRemoveFromDirectory, api.PhaseStatusNotFound, nil)
			return
		}
		entry, err = o.directory.FindByProvisioningID(ctx, provisioningID)
	default:
		entry, err = o.directory.FindByProvisioningID(ctx, provisioningID)
	}
	if err != nil && !errors.Is(err, rterrors.ErrNotFound) {
		logger.WithError(err).Error("directory lookup failed")
		o.record(result, api.RetirementPhaseRemoveFromDirectory, api.PhaseStatusFailed, lo.ToPtr(err.Error()))
		return
	}
	if entry == nil {
		logger.Info("no directory entry")
		o.record(result, api.RetirementPhaseRemoveFromDirectory, api.PhaseStatusNotFound, nil)
		return
	}
	if err := o.directory.RemoveEntry(ctx, entry.ObjectID); err != nil {
		logger.WithError(err).Error("directory removal failed")
		o.record(result, api.RetirementPhaseRemoveFromDirectory, api.PhaseStatusFailed, lo.ToPtr(err.Error()))
		return
	}
	logger.Info("removed from directory")
	o.record(result, api.RetirementPhaseRemoveFromDirectory, api.PhaseStatusSuccess, nil)
}

// resolveProvisioningID performs the read-only registry lookup needed when
// the directory phase runs without the provisioning phase having resolved an
// identifier first.
func (o *Orchestrator) resolveProvisioningID(ctx context.Context, device api.DeviceRecord) (string, error) {
	entry, err := o.registry.FindBySerial(ctx, device.SerialNumber)
	if err != nil && !errors.Is(err, rterrors.ErrNotFound) {
		return "", err
	}
	if entry == nil {
		return "", nil
	}
	return entry.ProvisioningDeviceID, nil
}

func (o *Orchestrator) record(result *api.RetirementResult, phase api.RetirementPhase, status api.PhaseStatus, detail *string) {
	result.Outcomes = append(result.Outcomes, api.RetirementPhaseOutcome{
		Phase:       phase,
		Status:      status,
		ErrorDetail: detail,
		Timestamp:   time.Now().UTC(),
	})
	if o.metrics != nil {
		o.metrics.RecordPhaseOutcome(phase, status)
	}
}
