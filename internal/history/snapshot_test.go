package history

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTripIsStable(t *testing.T) {
	s := testSnapshot("S1")
	tracking := Tracking{Applied: true, Platform: "LinkedIn", Status: "Interview", Notes: "a \"quoted\" note <b>"}
	s.Tracking = &tracking

	first, err := encodeJSON(s)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(first, &decoded))

	second, err := encodeJSON(&decoded)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Contains(t, string(first), `<only> & async`)
}

func TestTrackingDefaults(t *testing.T) {
	var tracking Tracking
	require.NoError(t, json.Unmarshal([]byte(`{"notes":"hi"}`), &tracking))
	assert.Equal(t, Tracking{Status: "Draft", Notes: "hi"}, tracking)

	var s Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"timestamp":"t","inputs":{"job_description":"x"}}`), &s))
	assert.Nil(t, s.Tracking)
	assert.Equal(t, DefaultTracking(), s.CurrentTracking())
}

func TestTrackingPatch(t *testing.T) {
	assert.True(t, TrackingPatch{}.IsEmpty())

	status := "Applied"
	applied := true
	patch := TrackingPatch{Status: &status, Applied: &applied}
	assert.False(t, patch.IsEmpty())

	got := patch.Apply(Tracking{Platform: "hh.ru", Status: "Draft", Notes: "keep"})
	assert.Equal(t, Tracking{Applied: true, Platform: "hh.ru", Status: "Applied", Notes: "keep"}, got)
}

func TestSnapshotHelpers(t *testing.T) {
	s := &Snapshot{Inputs: Inputs{CompanyURL: " https://acme.io "}}
	assert.Equal(t, "https://acme.io", s.CompanyLabel())
	s.Inputs.CompanyName = "Acme"
	assert.Equal(t, "Acme", s.CompanyLabel())

	at := time.Date(2026, 10, 17, 12, 30, 45, 999, time.FixedZone("MSK", 3*3600))
	s.Timestamp = FormatTimestamp(at)
	assert.Equal(t, "2026-10-17T09:30:45Z", s.Timestamp)

	parsed, err := s.Time()
	require.NoError(t, err)
	assert.True(t, parsed.Equal(at.Truncate(time.Second)))
}

func TestSnapshotValidate(t *testing.T) {
	assert.NoError(t, testSnapshot("S1").Validate())
	assert.Error(t, Snapshot{Timestamp: "t"}.Validate())
	assert.Error(t, Snapshot{Inputs: Inputs{JobDescription: "x"}}.Validate())
}
