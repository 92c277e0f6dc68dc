package model

import (
	"time"

	"gorm.io/gorm"
)

// RetirementRun is one row per orchestrator run. The JSON audit artifact on
// disk stays the durable record; these tables exist so runs can be queried
// across time without collecting artifact files.
type RetirementRun struct {
	ID            string `gorm:"primaryKey"`
	StartedAt     time.Time
	CompletedAt   time.Time
	DryRun        bool
	DevicesTotal  int
	DevicesFailed int
	NoDecision    int
	Excluded      int
	// Summary is the full audit artifact, stored verbatim.
	Summary []byte `gorm:"type:jsonb"`
	// DeletedAt enables soft deletion so a purged run still blocks run-id reuse.
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// RetiredDevice is one row per device per run, carrying the derived overall
// status for cheap "what still needs a re-run" queries.
type RetiredDevice struct {
	RunID        string `gorm:"primaryKey"`
	SerialNumber string `gorm:"primaryKey;index"`
	DeviceID     string
	Model        string
	Overall      string
	// Outcomes is the device's phase outcome list, stored verbatim.
	Outcomes []byte `gorm:"type:jsonb"`
}
