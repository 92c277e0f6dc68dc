package store

import (
	"fmt"

	"github.com/retirectl/retirectl/internal/config"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// InitDB opens the audit database connection. TranslateError is enabled so
// duplicate-key and not-found conditions surface as gorm sentinel errors and
// can be mapped through rterrors.ErrorFromGormError.
func InitDB(cfg *config.Config, log logrus.FieldLogger) (*gorm.DB, error) {
	if !cfg.DatabaseConfigured() {
		return nil, fmt.Errorf("no audit database configured")
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	log.Info("connected to audit database")
	return db, nil
}
