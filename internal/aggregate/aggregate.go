package aggregate

import (
	"time"

	api "github.com/retirectl/retirectl/api/v1alpha1"
)

// Aggregate folds per-device phase outcomes into the run's audit summary.
// The input results are never mutated; the summary carries copies with the
// derived overall status filled in.
func Aggregate(runID string, startedAt time.Time, results []api.RetirementResult, config api.RetirementConfig) api.AuditSummary {
	summary := api.AuditSummary{
		RunID:       runID,
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
		Config:      config,
		PhaseCounts: map[api.RetirementPhase]api.PhaseCounts{},
		Devices:     make([]api.RetirementResult, 0, len(results)),
	}

	for _, result := range results {
		for _, outcome := range result.Outcomes {
			counts := summary.PhaseCounts[outcome.Phase]
			switch outcome.Status {
			case api.PhaseStatusSuccess:
				counts.Success++
			case api.PhaseStatusFailed:
				counts.Failed++
			case api.PhaseStatusSkipped:
				counts.Skipped++
			case api.PhaseStatusNotFound:
				counts.NotFound++
			}
			summary.PhaseCounts[outcome.Phase] = counts
		}

		entry := result
		entry.Outcomes = append([]api.RetirementPhaseOutcome(nil), result.Outcomes...)
		entry.Overall = overallStatus(result, config)
		summary.Devices = append(summary.Devices, entry)
	}
	return summary
}

// overallStatus derives one device's overall status from its outcomes:
// DryRun when the run was simulated; Failed when the wipe failed under
// gating (nothing else was attempted) or when no phase got through at all;
// Done when every enabled phase ended Success or NotFound; Partial when some
// phases got through and some did not.
func overallStatus(result api.RetirementResult, config api.RetirementConfig) api.OverallStatus {
	if config.DryRun {
		return api.OverallStatusDryRun
	}

	through, blocked := 0, 0
	wipeFailed := false
	for _, outcome := range result.Outcomes {
		switch outcome.Status {
		case api.PhaseStatusSuccess, api.PhaseStatusNotFound:
			through++
		case api.PhaseStatusFailed, api.PhaseStatusSkipped:
			blocked++
		}
		if outcome.Phase == api.RetirementPhaseWipe && outcome.Status == api.PhaseStatusFailed {
			wipeFailed = true
		}
	}

	switch {
	case wipeFailed && config.GateCleanupOnWipeSuccess:
		return api.OverallStatusFailed
	case blocked == 0:
		return api.OverallStatusDone
	case through > 0:
		return api.OverallStatusPartial
	default:
		return api.OverallStatusFailed
	}
}
