package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	api "github.com/retirectl/retirectl/api/v1alpha1"
	"github.com/retirectl/retirectl/internal/rterrors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeManagement struct {
	mu     sync.Mutex
	wiped  []string
	failOn map[string]error
}

func (f *fakeManagement) WipeDevice(ctx context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failOn[deviceID]; ok {
		return err
	}
	f.wiped = append(f.wiped, deviceID)
	return nil
}

type fakeRegistry struct {
	mu      sync.Mutex
	entries map[string]*api.RegistryEntry
	removed []string
	findErr error
	rmErr   error
}

func (f *fakeRegistry) FindBySerial(ctx context.Context, serialNumber string) (*api.RegistryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.entries[serialNumber], nil
}

func (f *fakeRegistry) RemoveEntry(ctx context.Context, entryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rmErr != nil {
		return f.rmErr
	}
	for serial, entry := range f.entries {
		if entry.EntryID == entryID {
			delete(f.entries, serial)
		}
	}
	f.removed = append(f.removed, entryID)
	return nil
}

type fakeDirectory struct {
	mu             sync.Mutex
	byObjectID     map[string]*api.DirectoryEntry
	byProvisioning map[string]*api.DirectoryEntry
	removed        []string
	rmErr          error
}

func (f *fakeDirectory) FindByObjectID(ctx context.Context, objectID string) (*api.DirectoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byObjectID[objectID], nil
}

func (f *fakeDirectory) FindByProvisioningID(ctx context.Context, provisioningID string) (*api.DirectoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byProvisioning[provisioningID], nil
}

func (f *fakeDirectory) RemoveEntry(ctx context.Context, objectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rmErr != nil {
		return f.rmErr
	}
	for key, entry := range f.byObjectID {
		if entry.ObjectID == objectID {
			delete(f.byObjectID, key)
		}
	}
	for key, entry := range f.byProvisioning {
		if entry.ObjectID == objectID {
			delete(f.byProvisioning, key)
		}
	}
	f.removed = append(f.removed, objectID)
	return nil
}

type recordingConfirmer struct {
	asked   int
	answer  bool
	lastLen int
}

func (c *recordingConfirmer) Confirm(ctx context.Context, deviceCount int) (bool, error) {
	c.asked++
	c.lastLen = deviceCount
	return c.answer, nil
}

func testDevice(serial string) api.DeviceRecord {
	return api.DeviceRecord{
		DeviceID:     "mgmt-" + serial,
		SerialNumber: serial,
		Model:        "ModelX",
	}
}

func newTestOrchestrator(mgmt *fakeManagement, reg *fakeRegistry, dir *fakeDirectory) *Orchestrator {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewOrchestrator(logger, mgmt, reg, dir)
}

func fullTeardownConfig() api.RetirementConfig {
	return api.RetirementConfig{
		RemoveFromProvisioning: true,
		RemoveFromDirectory:    true,
	}
}

func outcomeFor(t *testing.T, result api.RetirementResult, phase api.RetirementPhase) api.RetirementPhaseOutcome {
	t.Helper()
	for _, outcome := range result.Outcomes {
		if outcome.Phase == phase {
			return outcome
		}
	}
	t.Fatalf("no outcome recorded for phase %s", phase)
	return api.RetirementPhaseOutcome{}
}

func TestRetireFullTeardown(t *testing.T) {
	require := require.New(t)
	mgmt := &fakeManagement{}
	reg := &fakeRegistry{entries: map[string]*api.RegistryEntry{
		"S1": {EntryID: "reg-1", SerialNumber: "S1", ProvisioningDeviceID: "prov-1"},
	}}
	dir := &fakeDirectory{byProvisioning: map[string]*api.DirectoryEntry{
		"prov-1": {ObjectID: "dir-1"},
	}}

	o := newTestOrchestrator(mgmt, reg, dir)
	results, err := o.Retire(context.Background(), []api.DeviceRecord{testDevice("S1")}, fullTeardownConfig())
	require.NoError(err)
	require.Len(results, 1)
	require.Len(results[0].Outcomes, 3)

	require.Equal(api.PhaseStatusSuccess, outcomeFor(t, results[0], api.RetirementPhaseWipe).Status)
	require.Equal(api.PhaseStatusSuccess, outcomeFor(t, results[0], api.RetirementPhaseRemoveFromProvisioning).Status)
	require.Equal(api.PhaseStatusSuccess, outcomeFor(t, results[0], api.RetirementPhaseRemoveFromDirectory).Status)
	require.Equal([]string{"mgmt-S1"}, mgmt.wiped)
	require.Equal([]string{"reg-1"}, reg.removed)
	require.Equal([]string{"dir-1"}, dir.removed)
}

func TestRetireDeviceAbsentFromDirectory(t *testing.T) {
	require := require.New(t)
	mgmt := &fakeManagement{}
	reg := &fakeRegistry{entries: map[string]*api.RegistryEntry{
		"S1": {EntryID: "reg-1", SerialNumber: "S1", ProvisioningDeviceID: "prov-1"},
	}}
	dir := &fakeDirectory{}

	o := newTestOrchestrator(mgmt, reg, dir)
	results, err := o.Retire(context.Background(), []api.DeviceRecord{testDevice("S1")}, fullTeardownConfig())
	require.NoError(err)

	require.Equal(api.PhaseStatusSuccess, outcomeFor(t, results[0], api.RetirementPhaseWipe).Status)
	require.Equal(api.PhaseStatusSuccess, outcomeFor(t, results[0], api.RetirementPhaseRemoveFromProvisioning).Status)
	require.Equal(api.PhaseStatusNotFound, outcomeFor(t, results[0], api.RetirementPhaseRemoveFromDirectory).Status)
}

func TestRetireDryRunMakesNoExternalCalls(t *testing.T) {
	require := require.New(t)
	mgmt := &fakeManagement{}
	reg := &fakeRegistry{entries: map[string]*api.RegistryEntry{
		"S1": {EntryID: "reg-1", SerialNumber: "S1"},
	}}
	dir := &fakeDirectory{}

	o := newTestOrchestrator(mgmt, reg, dir)
	config := fullTeardownConfig()
	config.DryRun = true
	results, err := o.Retire(context.Background(), []api.DeviceRecord{testDevice("S1"), testDevice("S2")}, config)
	require.NoError(err)
	require.Len(results, 2)

	for _, result := range results {
		require.Len(result.Outcomes, 3)
		for _, outcome := range result.Outcomes {
			require.Equal(api.PhaseStatusSkipped, outcome.Status)
			require.Equal("dry-run", lo.FromPtr(outcome.ErrorDetail))
		}
	}
	require.Empty(mgmt.wiped)
	require.Empty(reg.removed)
	require.Empty(dir.removed)
}

func TestRetireRecordsExactlyEnabledPhases(t *testing.T) {
	tests := []struct {
		name   string
		config api.RetirementConfig
		phases []api.RetirementPhase
	}{
		{
			name:   "wipe only",
			config: api.RetirementConfig{},
			phases: []api.RetirementPhase{api.RetirementPhaseWipe},
		},
		{
			name:   "wipe and provisioning",
			config: api.RetirementConfig{RemoveFromProvisioning: true},
			phases: []api.RetirementPhase{api.RetirementPhaseWipe, api.RetirementPhaseRemoveFromProvisioning},
		},
		{
			name:   "wipe and directory",
			config: api.RetirementConfig{RemoveFromDirectory: true},
			phases: []api.RetirementPhase{api.RetirementPhaseWipe, api.RetirementPhaseRemoveFromDirectory},
		},
		{
			name:   "all phases",
			config: fullTeardownConfig(),
			phases: []api.RetirementPhase{api.RetirementPhaseWipe, api.RetirementPhaseRemoveFromProvisioning, api.RetirementPhaseRemoveFromDirectory},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			o := newTestOrchestrator(&fakeManagement{}, &fakeRegistry{}, &fakeDirectory{})
			results, err := o.Retire(context.Background(), []api.DeviceRecord{testDevice("S1")}, tt.config)
			require.NoError(err)

			recorded := make([]api.RetirementPhase, 0, len(results[0].Outcomes))
			for _, outcome := range results[0].Outcomes {
				recorded = append(recorded, outcome.Phase)
			}
			require.Equal(tt.phases, recorded)
		})
	}
}

func TestRetireGatedWipeFailureSkipsCleanup(t *testing.T) {
	require := require.New(t)
	mgmt := &fakeManagement{failOn: map[string]error{"mgmt-S1": errors.New("device unreachable")}}
	reg := &fakeRegistry{entries: map[string]*api.RegistryEntry{
		"S1": {EntryID: "reg-1", SerialNumber: "S1"},
	}}
	dir := &fakeDirectory{}

	o := newTestOrchestrator(mgmt, reg, dir)
	config := fullTeardownConfig()
	config.GateCleanupOnWipeSuccess = true
	results, err := o.Retire(context.Background(), []api.DeviceRecord{testDevice("S1")}, config)
	require.NoError(err)

	wipe := outcomeFor(t, results[0], api.RetirementPhaseWipe)
	require.Equal(api.PhaseStatusFailed, wipe.Status)
	require.Contains(lo.FromPtr(wipe.ErrorDetail), "unreachable")
	require.Equal(api.PhaseStatusSkipped, outcomeFor(t, results[0], api.RetirementPhaseRemoveFromProvisioning).Status)
	require.Equal(api.PhaseStatusSkipped, outcomeFor(t, results[0], api.RetirementPhaseRemoveFromDirectory).Status)
	require.Empty(reg.removed)
	require.Empty(dir.removed)
}

func TestRetireUngatedWipeFailureStillCleansUp(t *testing.T) {
	require := require.New(t)
	mgmt := &fakeManagement{failOn: map[string]error{"mgmt-S1": errors.New("device unreachable")}}
	reg := &fakeRegistry{entries: map[string]*api.RegistryEntry{
		"S1": {EntryID: "reg-1", SerialNumber: "S1", ProvisioningDeviceID: "prov-1"},
	}}
	dir := &fakeDirectory{byProvisioning: map[string]*api.DirectoryEntry{
		"prov-1": {ObjectID: "dir-1"},
	}}

	o := newTestOrchestrator(mgmt, reg, dir)
	results, err := o.Retire(context.Background(), []api.DeviceRecord{testDevice("S1")}, fullTeardownConfig())
	require.NoError(err)

	require.Equal(api.PhaseStatusFailed, outcomeFor(t, results[0], api.RetirementPhaseWipe).Status)
	require.Equal(api.PhaseStatusSuccess, outcomeFor(t, results[0], api.RetirementPhaseRemoveFromProvisioning).Status)
	require.Equal(api.PhaseStatusSuccess, outcomeFor(t, results[0], api.RetirementPhaseRemoveFromDirectory).Status)
}

func TestRetireIdempotentRerun(t *testing.T) {
	require := require.New(t)
	mgmt := &fakeManagement{}
	reg := &fakeRegistry{entries: map[string]*api.RegistryEntry{
		"S1": {EntryID: "reg-1", SerialNumber: "S1", ProvisioningDeviceID: "prov-1"},
	}}
	dir := &fakeDirectory{byProvisioning: map[string]*api.DirectoryEntry{
		"prov-1": {ObjectID: "dir-1"},
	}}

	o := newTestOrchestrator(mgmt, reg, dir)
	devices := []api.DeviceRecord{testDevice("S1")}

	first, err := o.Retire(context.Background(), devices, fullTeardownConfig())
	require.NoError(err)
	require.Equal(api.PhaseStatusSuccess, outcomeFor(t, first[0], api.RetirementPhaseRemoveFromProvisioning).Status)

	// the fakes reflect the first run's removals; the second run must see
	// NotFound, never Failed
	second, err := o.Retire(context.Background(), devices, fullTeardownConfig())
	require.NoError(err)
	require.Equal(api.PhaseStatusNotFound, outcomeFor(t, second[0], api.RetirementPhaseRemoveFromProvisioning).Status)
	require.Equal(api.PhaseStatusNotFound, outcomeFor(t, second[0], api.RetirementPhaseRemoveFromDirectory).Status)
}

func TestRetireOneDeviceFailureDoesNotAbortBatch(t *testing.T) {
	require := require.New(t)
	mgmt := &fakeManagement{failOn: map[string]error{"mgmt-S2": errors.New("boom")}}
	o := newTestOrchestrator(mgmt, &fakeRegistry{}, &fakeDirectory{})

	devices := []api.DeviceRecord{testDevice("S1"), testDevice("S2"), testDevice("S3")}
	results, err := o.Retire(context.Background(), devices, api.RetirementConfig{})
	require.NoError(err)
	require.Len(results, 3)

	// input order is preserved in output
	require.Equal("S1", results[0].SerialNumber)
	require.Equal("S2", results[1].SerialNumber)
	require.Equal("S3", results[2].SerialNumber)
	require.Equal(api.PhaseStatusSuccess, outcomeFor(t, results[0], api.RetirementPhaseWipe).Status)
	require.Equal(api.PhaseStatusFailed, outcomeFor(t, results[1], api.RetirementPhaseWipe).Status)
	require.Equal(api.PhaseStatusSuccess, outcomeFor(t, results[2], api.RetirementPhaseWipe).Status)
}

func TestRetireBoundedParallelismPreservesOrder(t *testing.T) {
	require := require.New(t)
	mgmt := &fakeManagement{}
	o := newTestOrchestrator(mgmt, &fakeRegistry{}, &fakeDirectory{})

	devices := make([]api.DeviceRecord, 20)
	for i := range devices {
		devices[i] = testDevice(fmt.Sprintf("S%02d", i))
	}
	config := api.RetirementConfig{Concurrency: 4}
	results, err := o.Retire(context.Background(), devices, config)
	require.NoError(err)
	require.Len(results, 20)
	for i, result := range results {
		require.Equal(fmt.Sprintf("S%02d", i), result.SerialNumber)
		require.Equal(api.PhaseStatusSuccess, outcomeFor(t, result, api.RetirementPhaseWipe).Status)
	}
	require.Len(mgmt.wiped, 20)
}

func TestRetireConfirmationGate(t *testing.T) {
	require := require.New(t)

	t.Run("declined aborts with no side effects", func(t *testing.T) {
		mgmt := &fakeManagement{}
		confirmer := &recordingConfirmer{answer: false}
		o := newTestOrchestrator(mgmt, &fakeRegistry{}, &fakeDirectory{}).WithConfirmer(confirmer)

		config := api.RetirementConfig{ConfirmationRequired: true}
		_, err := o.Retire(context.Background(), []api.DeviceRecord{testDevice("S1"), testDevice("S2")}, config)
		require.ErrorIs(err, rterrors.ErrConfirmationDeclined)
		require.Empty(mgmt.wiped)
		require.Equal(1, confirmer.asked)
		require.Equal(2, confirmer.lastLen)
	})

	t.Run("asked once for the whole batch", func(t *testing.T) {
		confirmer := &recordingConfirmer{answer: true}
		o := newTestOrchestrator(&fakeManagement{}, &fakeRegistry{}, &fakeDirectory{}).WithConfirmer(confirmer)

		config := api.RetirementConfig{ConfirmationRequired: true}
		results, err := o.Retire(context.Background(), []api.DeviceRecord{testDevice("S1"), testDevice("S2"), testDevice("S3")}, config)
		require.NoError(err)
		require.Len(results, 3)
		require.Equal(1, confirmer.asked)
	})

	t.Run("dry-run bypasses confirmation", func(t *testing.T) {
		confirmer := &recordingConfirmer{answer: false}
		o := newTestOrchestrator(&fakeManagement{}, &fakeRegistry{}, &fakeDirectory{}).WithConfirmer(confirmer)

		config := api.RetirementConfig{ConfirmationRequired: true, DryRun: true}
		results, err := o.Retire(context.Background(), []api.DeviceRecord{testDevice("S1")}, config)
		require.NoError(err)
		require.Len(results, 1)
		require.Equal(0, confirmer.asked)
	})
}

func TestValidateConfig(t *testing.T) {
	require := require.New(t)
	o := newTestOrchestrator(&fakeManagement{}, &fakeRegistry{}, &fakeDirectory{})

	err := o.ValidateConfig(api.RetirementConfig{GateCleanupOnWipeSuccess: true})
	require.ErrorIs(err, rterrors.ErrConfigInvalid)

	err = o.ValidateConfig(api.RetirementConfig{Concurrency: -1})
	require.ErrorIs(err, rterrors.ErrConfigInvalid)

	err = o.ValidateConfig(api.RetirementConfig{ConfirmationRequired: true})
	require.ErrorIs(err, rterrors.ErrConfirmerNotWired)

	require.NoError(o.ValidateConfig(fullTeardownConfig()))
}

func TestRetireTransientRegistryErrorRecordsFailed(t *testing.T) {
	require := require.New(t)
	reg := &fakeRegistry{findErr: rterrors.NewServiceError("provisioning", "findBySerial", true, errors.New("timeout"))}
	o := newTestOrchestrator(&fakeManagement{}, reg, &fakeDirectory{})

	config := api.RetirementConfig{RemoveFromProvisioning: true}
	results, err := o.Retire(context.Background(), []api.DeviceRecord{testDevice("S1")}, config)
	require.NoError(err)
	outcome := outcomeFor(t, results[0], api.RetirementPhaseRemoveFromProvisioning)
	require.Equal(api.PhaseStatusFailed, outcome.Status)
	require.Contains(lo.FromPtr(outcome.ErrorDetail), "timeout")
}

func TestRetireCanceledBatchRecordsSkipped(t *testing.T) {
	require := require.New(t)
	o := newTestOrchestrator(&fakeManagement{}, &fakeRegistry{}, &fakeDirectory{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	devices := []api.DeviceRecord{testDevice("S1"), testDevice("S2")}
	results, err := o.Retire(ctx, devices, fullTeardownConfig())
	require.NoError(err)
	require.Len(results, 2)
	for _, result := range results {
		require.Len(result.Outcomes, 3)
		for _, outcome := range result.Outcomes {
			require.Equal(api.PhaseStatusSkipped, outcome.Status)
			require.Equal("canceled", lo.FromPtr(outcome.ErrorDetail))
		}
	}
}
