package artifact

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	api "github.com/retirectl/retirectl/api/v1alpha1"
	"github.com/retirectl/retirectl/internal/rterrors"
)

const (
	// SerialColumn and DecisionColumn are the two columns the artifact must
	// carry; header matching is case-insensitive and every other column is
	// passed through untouched.
	SerialColumn   = "serialNumber"
	DecisionColumn = "decision"
)

// DecisionSet is the validated content of one decision artifact, partitioned
// by decision. Once ingested it is an immutable snapshot for the run.
type DecisionSet struct {
	Keep   []api.DecisionRecord
	Delete []api.DecisionRecord
	Unset  []api.DecisionRecord

	bySerial map[string]api.Decision
}

// Ingest parses and validates a decision artifact. The artifact is rejected
// as a whole if the required columns are absent or any row carries a decision
// value outside {Keep, Delete, empty}; an empty cell normalizes to Unset.
func Ingest(r io.Reader) (*DecisionSet, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", rterrors.ErrMalformedArtifact, err)
	}

	serialIdx, decisionIdx := -1, -1
	for i, name := range header {
		switch {
		case strings.EqualFold(strings.TrimSpace(name), SerialColumn):
			serialIdx = i
		case strings.EqualFold(strings.TrimSpace(name), DecisionColumn):
			decisionIdx = i
		}
	}
	if serialIdx < 0 {
		return nil, rterrors.ErrMissingSerialColumn
	}
	if decisionIdx < 0 {
		return nil, rterrors.ErrMissingDecisionColumn
	}

	set := &DecisionSet{bySerial: map[string]api.Decision{}}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", rterrors.ErrMalformedArtifact, line, err)
		}

		decision, err := parseDecision(row[decisionIdx])
		if err != nil {
			return nil, fmt.Errorf("%w (line %d, value %q)", err, line, row[decisionIdx])
		}
		record := api.DecisionRecord{
			SerialNumber: strings.TrimSpace(row[serialIdx]),
			Decision:     decision,
			Passthrough:  passthroughColumns(header, row, serialIdx, decisionIdx),
		}
		if record.SerialNumber == "" {
			return nil, fmt.Errorf("%w: line %d: empty serial number", rterrors.ErrMalformedArtifact, line)
		}

		// first row wins on duplicate serials, matching the eligibility filter
		if _, dup := set.bySerial[record.SerialNumber]; dup {
			continue
		}
		set.bySerial[record.SerialNumber] = decision
		switch decision {
		case api.DecisionKeep:
			set.Keep = append(set.Keep, record)
		case api.DecisionDelete:
			set.Delete = append(set.Delete, record)
		default:
			set.Unset = append(set.Unset, record)
		}
	}
	return set, nil
}

// Decision returns the decision recorded for a serial number. Serials absent
// from the artifact report Unset: they were never reviewed, which must not be
// mistaken for either Keep or Delete.
func (s *DecisionSet) Decision(serialNumber string) api.Decision {
	if d, ok := s.bySerial[serialNumber]; ok {
		return d
	}
	return api.DecisionUnset
}

// Contains reports whether the artifact carries a row for the serial number.
func (s *DecisionSet) Contains(serialNumber string) bool {
	_, ok := s.bySerial[serialNumber]
	return ok
}

// SelectDevices applies the artifact as the authoritative selection: the
// candidates are exactly the inventory devices with a Delete decision, in
// inventory order. Auto-selected devices whose decision is Unset or that are
// absent from the artifact are returned as noDecision serials so the audit
// can report them; they are never processed.
func (s *DecisionSet) SelectDevices(devices []api.DeviceRecord, autoSelected []api.DeviceRecord) (candidates []api.DeviceRecord, noDecision []string) {
	for _, device := range devices {
		if s.Contains(device.SerialNumber) && s.Decision(device.SerialNumber) == api.DecisionDelete {
			candidates = append(candidates, device)
		}
	}
	for _, device := range autoSelected {
		if s.Decision(device.SerialNumber) == api.DecisionUnset {
			noDecision = append(noDecision, device.SerialNumber)
		}
	}
	return candidates, noDecision
}

func parseDecision(value string) (api.Decision, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return api.DecisionUnset, nil
	case "keep":
		return api.DecisionKeep, nil
	case "delete":
		return api.DecisionDelete, nil
	default:
		return "", rterrors.ErrInvalidDecisionValue
	}
}

func passthroughColumns(header, row []string, serialIdx, decisionIdx int) map[string]string {
	if len(header) <= 2 {
		return nil
	}
	columns := map[string]string{}
	for i, name := range header {
		if i == serialIdx || i == decisionIdx || i >= len(row) {
			continue
		}
		columns[name] = row[i]
	}
	return columns
}
