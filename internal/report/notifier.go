package report

import (
	"context"

	api "github.com/retirectl/retirectl/api/v1alpha1"
	"github.com/sirupsen/logrus"
)

// Notifier delivers the run summary to whoever needs to hear about it. It is
// a fire-and-forget sink: delivery failure is logged by the caller, never
// fatal to the run.
type Notifier interface {
	Notify(ctx context.Context, summary *api.AuditSummary) error
}

// LogNotifier reports the run outcome through the logger. It stands in for
// the mail-based delivery of the full deployment, which is bootstrapped
// outside this tool.
type LogNotifier struct {
	log logrus.FieldLogger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(log logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, summary *api.AuditSummary) error {
	n.log.WithFields(logrus.Fields{
		"run_id":       summary.RunID,
		"devices":      len(summary.Devices),
		"failed":       summary.DevicesFailed(),
		"no_decision":  len(summary.NoDecision),
		"excluded":     len(summary.Excluded),
		"completed_at": summary.CompletedAt,
	}).Info("retirement run completed")
	return nil
}
