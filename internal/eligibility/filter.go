package eligibility

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	api "github.com/retirectl/retirectl/api/v1alpha1"
	"github.com/retirectl/retirectl/internal/inventory"
	"github.com/sirupsen/logrus"
)

// Filter selects retirement candidates from a device population. Selection is
// a pure function of (devices, criteria) apart from the injected group-name
// lookup used for cohort resolution.
type Filter struct {
	log    logrus.FieldLogger
	groups inventory.GroupLookup
}

func NewFilter(log logrus.FieldLogger, groups inventory.GroupLookup) *Filter {
	return &Filter{log: log, groups: groups}
}

// Select partitions devices into retirement candidates and excluded devices.
// Every excluded device carries the reason it was left out; nothing is
// silently dropped. Duplicate serial numbers keep the first occurrence, and
// input order is preserved in both partitions.
func (f *Filter) Select(ctx context.Context, devices []api.DeviceRecord, criteria api.EligibilityCriteria) ([]api.DeviceRecord, []api.IneligibleDevice, error) {
	eligible := []api.DeviceRecord{}
	excluded := []api.IneligibleDevice{}
	seen := map[string]struct{}{}

	for _, device := range devices {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if device.SerialNumber == "" {
			excluded = append(excluded, api.IneligibleDevice{
				Device: device,
				Reason: api.ExclusionReasonMissingSerialNumber,
				Detail: fmt.Sprintf("device %s has no serial number", device.DeviceID),
			})
			continue
		}
		if _, dup := seen[device.SerialNumber]; dup {
			continue
		}
		seen[device.SerialNumber] = struct{}{}

		if reason, detail := f.evaluate(ctx, device, criteria); reason != "" {
			excluded = append(excluded, api.IneligibleDevice{Device: device, Reason: reason, Detail: detail})
			continue
		}
		eligible = append(eligible, device)
	}
	return eligible, excluded, nil
}

// evaluate returns the exclusion reason for a device, or "" if it is a
// candidate.
func (f *Filter) evaluate(ctx context.Context, device api.DeviceRecord, criteria api.EligibilityCriteria) (api.ExclusionReason, string) {
	// modelsToKeep always wins over modelsToRetire.
	if slices.Contains(criteria.ModelsToKeep, device.Model) {
		return api.ExclusionReasonModelKept, fmt.Sprintf("model %q is configured to keep", device.Model)
	}

	inCohort, lookupFailed := f.inCohort(ctx, device, criteria.CohortTags)

	retiredModel := slices.Contains(criteria.ModelsToRetire, device.Model)
	switch {
	case retiredModel && criteria.IncludeOtherCohortsForRetiredModels:
		// candidate regardless of cohort
	case retiredModel:
		if !inCohort {
			if lookupFailed {
				return api.ExclusionReasonCohortLookupFailed, "group lookup failed, cohort unknown"
			}
			return api.ExclusionReasonNotInCohort, ""
		}
	case len(criteria.ModelsToRetire) == 0:
		// no model targeting, all in-cohort devices are candidates
		if !inCohort {
			if lookupFailed {
				return api.ExclusionReasonCohortLookupFailed, "group lookup failed, cohort unknown"
			}
			return api.ExclusionReasonNotInCohort, ""
		}
	default:
		return api.ExclusionReasonModelNotTargeted, fmt.Sprintf("model %q is not in the retirement list", device.Model)
	}

	if criteria.MinimumFreeStorageBytesForSafeWipe > 0 && device.FreeStorageBytes < criteria.MinimumFreeStorageBytesForSafeWipe {
		return api.ExclusionReasonInsufficientFreeStorage,
			fmt.Sprintf("%d bytes free, %d required for a safe wipe", device.FreeStorageBytes, criteria.MinimumFreeStorageBytesForSafeWipe)
	}
	if criteria.MaxInactivityDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -criteria.MaxInactivityDays)
		// a device that never synced is as unreachable as one that stopped
		if device.LastSyncTime == nil || device.LastSyncTime.Before(cutoff) {
			return api.ExclusionReasonStaleLastSync,
				fmt.Sprintf("no sync within the last %d days", criteria.MaxInactivityDays)
		}
	}
	return "", ""
}

// inCohort reports whether any of the device's group memberships resolves to
// a name containing one of the configured cohort tags. A failed lookup for
// one group counts as "not that cohort" and is reported via the second return
// value so the caller can distinguish NotInCohort from CohortLookupFailed.
func (f *Filter) inCohort(ctx context.Context, device api.DeviceRecord, cohortTags []string) (bool, bool) {
	if len(cohortTags) == 0 {
		return true, false
	}
	lookupFailed := false
	for _, groupID := range device.GroupMemberships {
		name, err := f.groups.GroupName(ctx, groupID)
		if err != nil {
			f.log.WithError(err).Warnf("resolving group %q for device %s", groupID, device.SerialNumber)
			lookupFailed = true
			continue
		}
		for _, tag := range cohortTags {
			if strings.Contains(name, tag) {
				return true, false
			}
		}
	}
	return false, lookupFailed
}
