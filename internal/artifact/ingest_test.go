package artifact

import (
	"strings"
	"testing"

	api "github.com/retirectl/retirectl/api/v1alpha1"
	"github.com/retirectl/retirectl/internal/rterrors"
	"github.com/stretchr/testify/require"
)

func TestIngestPartitionsByDecision(t *testing.T) {
	require := require.New(t)
	csv := strings.Join([]string{
		"serialNumber,decision,model,owner",
		"S1,Delete,ModelX,alice",
		"S2,Keep,ModelX,bob",
		"S3,,ModelY,carol",
		"S4,delete,ModelY,dave",
	}, "\n")

	set, err := Ingest(strings.NewReader(csv))
	require.NoError(err)
	require.Len(set.Delete, 2)
	require.Len(set.Keep, 1)
	require.Len(set.Unset, 1)

	require.Equal(api.DecisionDelete, set.Decision("S1"))
	require.Equal(api.DecisionDelete, set.Decision("S4"))
	require.Equal(api.DecisionKeep, set.Decision("S2"))
	require.Equal(api.DecisionUnset, set.Decision("S3"))
	// absent serials are Unset, never Keep or Delete
	require.Equal(api.DecisionUnset, set.Decision("S99"))
	require.False(set.Contains("S99"))

	// informational columns ride along untouched
	require.Equal("alice", set.Delete[0].Passthrough["owner"])
}

func TestIngestHeaderMatchingIsCaseInsensitive(t *testing.T) {
	require := require.New(t)
	csv := "SerialNumber,Decision\nS1,Delete\n"
	set, err := Ingest(strings.NewReader(csv))
	require.NoError(err)
	require.Len(set.Delete, 1)
}

func TestIngestMissingColumnsFatal(t *testing.T) {
	require := require.New(t)

	_, err := Ingest(strings.NewReader("serialNumber,model\nS1,ModelX\n"))
	require.ErrorIs(err, rterrors.ErrMissingDecisionColumn)
	require.ErrorIs(err, rterrors.ErrMalformedArtifact)

	_, err = Ingest(strings.NewReader("serial,decision\nS1,Delete\n"))
	require.ErrorIs(err, rterrors.ErrMissingSerialColumn)
}

func TestIngestInvalidDecisionValueFatal(t *testing.T) {
	require := require.New(t)
	csv := "serialNumber,decision\nS1,Delete\nS2,Maybe\n"
	_, err := Ingest(strings.NewReader(csv))
	require.ErrorIs(err, rterrors.ErrInvalidDecisionValue)
	require.ErrorIs(err, rterrors.ErrMalformedArtifact)
	require.Contains(err.Error(), "Maybe")
}

func TestIngestDuplicateSerialFirstRowWins(t *testing.T) {
	require := require.New(t)
	csv := "serialNumber,decision\nS1,Keep\nS1,Delete\n"
	set, err := Ingest(strings.NewReader(csv))
	require.NoError(err)
	require.Equal(api.DecisionKeep, set.Decision("S1"))
	require.Empty(set.Delete)
}

func TestSelectDevicesArtifactIsAuthoritative(t *testing.T) {
	require := require.New(t)
	csv := strings.Join([]string{
		"serialNumber,decision",
		"S1,Delete",
		"S2,Keep",
		"S3,",
		"S5,Delete",
	}, "\n")
	set, err := Ingest(strings.NewReader(csv))
	require.NoError(err)

	inventory := []api.DeviceRecord{
		{SerialNumber: "S1"},
		{SerialNumber: "S2"},
		{SerialNumber: "S3"},
		{SerialNumber: "S4"},
		{SerialNumber: "S5"},
	}
	// the filter had selected S1..S4; the artifact overrides: S2 kept, S3
	// unset, S4 absent, and S5 added by the reviewer
	autoSelected := inventory[:4]

	candidates, noDecision := set.SelectDevices(inventory, autoSelected)
	require.Len(candidates, 2)
	require.Equal("S1", candidates[0].SerialNumber)
	require.Equal("S5", candidates[1].SerialNumber)
	require.Equal([]string{"S3", "S4"}, noDecision)
}
