package filtering

import (
	"strconv"
	"strings"
	"time"

	"github.com/spigell/job-buddy/internal/history"
)

type statusFilter struct {
	statuses []string
}

// NewStatus keeps entries whose tracking status is one of statuses, compared
// case-insensitively. An empty list disables the filter.
func NewStatus(statuses []string) Filter {
	f := &statusFilter{}
	for _, status := range statuses {
		if status = strings.TrimSpace(status); status != "" {
			f.statuses = append(f.statuses, status)
		}
	}
	return f
}

func (f *statusFilter) Name() string { return "status" }

func (f *statusFilter) IsEnabled() bool { return len(f.statuses) > 0 }

func (f *statusFilter) Apply(entries []history.Entry) ([]history.Entry, Step) {
	return keep(entries, func(s *history.Snapshot) bool {
		current := s.CurrentTracking().Status
		for _, status := range f.statuses {
			if strings.EqualFold(current, status) {
				return true
			}
		}
		return false
	})
}

func (f *statusFilter) Status() Status {
	details := map[string]string{}
	if len(f.statuses) > 0 {
		details["statuses"] = strings.Join(f.statuses, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Details: details}
}

type appliedFilter struct {
	applied *bool
}

// NewApplied keeps entries whose applied flag equals *applied. A nil pointer
// disables the filter.
func NewApplied(applied *bool) Filter {
	return &appliedFilter{applied: applied}
}

func (f *appliedFilter) Name() string { return "applied" }

func (f *appliedFilter) IsEnabled() bool { return f.applied != nil }

func (f *appliedFilter) Apply(entries []history.Entry) ([]history.Entry, Step) {
	return keep(entries, func(s *history.Snapshot) bool {
		return s.CurrentTracking().Applied == *f.applied
	})
}

func (f *appliedFilter) Status() Status {
	details := map[string]string{}
	if f.applied != nil {
		details["applied"] = strconv.FormatBool(*f.applied)
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Details: details}
}

type companyFilter struct {
	needle string
}

// NewCompany keeps entries whose company name or URL contains needle,
// ignoring case.
func NewCompany(needle string) Filter {
	return &companyFilter{needle: strings.ToLower(strings.TrimSpace(needle))}
}

func (f *companyFilter) Name() string { return "company" }

func (f *companyFilter) IsEnabled() bool { return f.needle != "" }

func (f *companyFilter) Apply(entries []history.Entry) ([]history.Entry, Step) {
	return keep(entries, func(s *history.Snapshot) bool {
		return strings.Contains(strings.ToLower(s.Inputs.CompanyName), f.needle) ||
			strings.Contains(strings.ToLower(s.Inputs.CompanyURL), f.needle)
	})
}

func (f *companyFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Details: map[string]string{"company": f.needle}}
}

type sinceFilter struct {
	since time.Time
}

// NewSince keeps entries recorded at or after since. Entries with an
// unparsable timestamp are dropped. A zero time disables the filter.
func NewSince(since time.Time) Filter {
	return &sinceFilter{since: since}
}

func (f *sinceFilter) Name() string { return "since" }

func (f *sinceFilter) IsEnabled() bool { return !f.since.IsZero() }

func (f *sinceFilter) Apply(entries []history.Entry) ([]history.Entry, Step) {
	return keep(entries, func(s *history.Snapshot) bool {
		ts, err := s.Time()
		return err == nil && !ts.Before(f.since)
	})
}

func (f *sinceFilter) Status() Status {
	details := map[string]string{}
	if !f.since.IsZero() {
		details["since"] = history.FormatTimestamp(f.since)
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Details: details}
}
