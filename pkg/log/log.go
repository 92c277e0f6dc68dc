package log

import (
	"github.com/sirupsen/logrus"
)

func InitLogs() *logrus.Logger {
	log := logrus.New()

	log.SetReportCaller(true)

	return log
}

// WithRunID creates a logger carrying the retirement run id, so every line
// emitted during one batch can be correlated with its audit artifact.
func WithRunID(runID string, inner logrus.FieldLogger) logrus.FieldLogger {
	return inner.WithField("run_id", runID)
}

// WithDevice creates a logger scoped to one device, keyed by serial number.
func WithDevice(serial string, inner logrus.FieldLogger) logrus.FieldLogger {
	return inner.WithField("serial_number", serial)
}
