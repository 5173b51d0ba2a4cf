package filtering

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/job-buddy/internal/history"
)

func entry(index int, company, status string, applied bool, timestamp string) history.Entry {
	return history.Entry{
		Index: index,
		Snapshot: &history.Snapshot{
			Timestamp: timestamp,
			Inputs:    history.Inputs{CompanyName: company, CompanyURL: "https://" + company + ".example"},
			Tracking:  &history.Tracking{Status: status, Applied: applied},
		},
	}
}

func sample() []history.Entry {
	return []history.Entry{
		entry(0, "acme", "Applied", true, "2026-10-17T09:00:00Z"),
		entry(1, "globex", "Draft", false, "2026-10-10T09:00:00Z"),
		entry(2, "initech", "Interview", true, "2026-09-01T09:00:00Z"),
		{Index: 3, Snapshot: &history.Snapshot{Timestamp: "yesterday", Inputs: history.Inputs{CompanyName: "Umbrella"}}},
	}
}

func indices(entries []history.Entry) []int {
	out := make([]int, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Index)
	}
	return out
}

func TestFilters(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name   string
		filter Filter
		want   []int
	}{
		{name: "status ignores case", filter: NewStatus([]string{"applied", " interview "}), want: []int{0, 2}},
		{name: "missing tracking is draft", filter: NewStatus([]string{"Draft"}), want: []int{1, 3}},
		{name: "applied", filter: NewApplied(&yes), want: []int{0, 2}},
		{name: "not applied", filter: NewApplied(&no), want: []int{1, 3}},
		{name: "company name", filter: NewCompany("GLOB"), want: []int{1}},
		{name: "company url", filter: NewCompany("initech.example"), want: []int{2}},
		{name: "since drops unparsable", filter: NewSince(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)), want: []int{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.filter.IsEnabled())
			got, step := tt.filter.Apply(sample())
			assert.Equal(t, tt.want, indices(got))
			assert.Equal(t, Step{Initial: 4, Dropped: 4 - len(tt.want), Left: len(tt.want)}, step)
		})
	}
}

func TestDisabledFilters(t *testing.T) {
	steps := []Filter{NewStatus([]string{" "}), NewApplied(nil), NewCompany(""), NewSince(time.Time{})}
	assert.False(t, Enabled(steps))
	assert.Equal(t, []int{0, 1, 2, 3}, indices(Run(nil, steps, sample())))

	for _, status := range Describe(steps) {
		assert.False(t, status.Enabled, status.Name)
	}
}

func TestRunChainsAndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	yes := true
	steps := []Filter{NewApplied(&yes), NewCompany("acme"), NewSince(time.Time{})}

	got := Run(zap.New(core), steps, sample())
	assert.Equal(t, []int{0}, indices(got))

	stepLogs := logs.FilterMessage("filter step").All()
	require.Len(t, stepLogs, 2)
	assert.Equal(t, "applied", stepLogs[0].ContextMap()["name"])
	assert.EqualValues(t, 2, stepLogs[0].ContextMap()["dropped"])
	assert.EqualValues(t, 1, stepLogs[1].ContextMap()["left"])
	assert.Equal(t, 1, logs.FilterMessage("filter disabled").Len())
}

func TestDescribe(t *testing.T) {
	yes := true
	statuses := Describe([]Filter{NewStatus([]string{"Offer", "Applied"}), NewApplied(&yes)})
	require.Len(t, statuses, 2)
	assert.Equal(t, "Offer,Applied", statuses[0].Details["statuses"])
	assert.Equal(t, "true", statuses[1].Details["applied"])
}
