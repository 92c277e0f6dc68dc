package store

import (
	"context"
	"encoding/json"
	"fmt"

	api "github.com/retirectl/retirectl/api/v1alpha1"
	"github.com/retirectl/retirectl/internal/rterrors"
	"github.com/retirectl/retirectl/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Audit interface defines methods for persisting retirement run records.
type Audit interface {
	InitialMigration(ctx context.Context) error
	RecordRun(ctx context.Context, summary *api.AuditSummary) error
	GetRun(ctx context.Context, runID string) (*api.AuditSummary, error)
	ListRuns(ctx context.Context, limit int) ([]model.RetirementRun, error)
	ListDevicesNeedingRerun(ctx context.Context, runID string) ([]model.RetiredDevice, error)
}

// AuditStore implements the Audit interface
type AuditStore struct {
	dbHandler *gorm.DB
	log       logrus.FieldLogger
}

// Make sure we conform to Audit interface
var _ Audit = (*AuditStore)(nil)

func NewAudit(db *gorm.DB, log logrus.FieldLogger) Audit {
	return &AuditStore{dbHandler: db, log: log}
}

func (s *AuditStore) getDB(ctx context.Context) *gorm.DB {
	return s.dbHandler.WithContext(ctx)
}

func (s *AuditStore) InitialMigration(ctx context.Context) error {
	db := s.getDB(ctx)
	return db.AutoMigrate(&model.RetirementRun{}, &model.RetiredDevice{})
}

// RecordRun writes the run row and one device row per result in a single
// transaction, so a partially recorded run can never be observed.
func (s *AuditStore) RecordRun(ctx context.Context, summary *api.AuditSummary) error {
	blob, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encoding audit summary: %w", err)
	}

	run := &model.RetirementRun{
		ID:            summary.RunID,
		StartedAt:     summary.StartedAt,
		CompletedAt:   summary.CompletedAt,
		DryRun:        summary.Config.DryRun,
		DevicesTotal:  len(summary.Devices),
		DevicesFailed: summary.DevicesFailed(),
		NoDecision:    len(summary.NoDecision),
		Excluded:      len(summary.Excluded),
		Summary:       blob,
	}

	devices := make([]model.RetiredDevice, 0, len(summary.Devices))
	for _, device := range summary.Devices {
		outcomes, err := json.Marshal(device.Outcomes)
		if err != nil {
			return fmt.Errorf("encoding outcomes for %s: %w", device.SerialNumber, err)
		}
		devices = append(devices, model.RetiredDevice{
			RunID:        summary.RunID,
			SerialNumber: device.SerialNumber,
			DeviceID:     device.DeviceID,
			Model:        device.Model,
			Overall:      string(device.Overall),
			Outcomes:     outcomes,
		})
	}

	err = s.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if len(devices) > 0 {
			if err := tx.Create(&devices).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return rterrors.ErrorFromGormError(err)
}

func (s *AuditStore) GetRun(ctx context.Context, runID string) (*api.AuditSummary, error) {
	var run model.RetirementRun
	result := s.getDB(ctx).Where("id = ?", runID).First(&run)
	if result.Error != nil {
		return nil, rterrors.ErrorFromGormError(result.Error)
	}
	summary := &api.AuditSummary{}
	if err := json.Unmarshal(run.Summary, summary); err != nil {
		return nil, fmt.Errorf("decoding stored audit summary: %w", err)
	}
	return summary, nil
}

func (s *AuditStore) ListRuns(ctx context.Context, limit int) ([]model.RetirementRun, error) {
	var runs []model.RetirementRun

	query := s.getDB(ctx)
	if limit > 0 {
		query = query.Limit(limit)
	}

	// deterministic ordering, newest run first
	query = query.Order("completed_at DESC, id DESC")

	result := query.Find(&runs)
	if result.Error != nil {
		return nil, rterrors.ErrorFromGormError(result.Error)
	}
	return runs, nil
}

// ListDevicesNeedingRerun returns the devices of a run whose overall status
// was Failed or Partial, the set a follow-up batch should target.
func (s *AuditStore) ListDevicesNeedingRerun(ctx context.Context, runID string) ([]model.RetiredDevice, error) {
	var devices []model.RetiredDevice
	result := s.getDB(ctx).
		Where("run_id = ? AND overall IN ?", runID, []string{string(api.OverallStatusFailed), string(api.OverallStatusPartial)}).
		Order("serial_number ASC").
		Find(&devices)
	if result.Error != nil {
		return nil, rterrors.ErrorFromGormError(result.Error)
	}
	return devices, nil
}
