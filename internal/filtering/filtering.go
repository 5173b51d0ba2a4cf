// Package filtering narrows recorded runs down to the ones a user asks for.
package filtering

import (
	"go.uber.org/zap"

	"github.com/spigell/job-buddy/internal/history"
)

// Filter represents a single filtering step applied to history entries.
type Filter interface {
	Name() string
	IsEnabled() bool

	Apply(entries []history.Entry) ([]history.Entry, Step)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// Run executes the supplied filters sequentially. Entries keep their store
// indices, so the result can be passed to history commands as is.
func Run(logger *zap.Logger, steps []Filter, entries []history.Entry) []history.Entry {
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, step := range steps {
		if !step.IsEnabled() {
			logger.Debug("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info := step.Apply(entries)
		logger.Debug("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)
		entries = next
	}

	return entries
}

// Enabled reports whether any of the filters would drop entries.
func Enabled(steps []Filter) bool {
	for _, step := range steps {
		if step.IsEnabled() {
			return true
		}
	}
	return false
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

// keep drops every entry for which match is false.
func keep(entries []history.Entry, match func(*history.Snapshot) bool) ([]history.Entry, Step) {
	left := make([]history.Entry, 0, len(entries))
	for _, entry := range entries {
		if match(entry.Snapshot) {
			left = append(left, entry)
		}
	}
	return left, Step{Initial: len(entries), Dropped: len(entries) - len(left), Left: len(left)}
}
