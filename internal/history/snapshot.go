// Package history is the append-only log of generation runs.
package history

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/spigell/job-buddy/internal/ai"
)

const (
	DefaultStatus = "Draft"
	// TimestampLayout is UTC with second precision.
	TimestampLayout = time.RFC3339
	// MaxResumeExcerpt bounds the résumé text kept in a snapshot, in characters.
	MaxResumeExcerpt = 4000
)

// Inputs are the caller-supplied texts of a run.
type Inputs struct {
	JobDescription string `json:"job_description"`
	CompanyName    string `json:"company_name"`
	CompanyURL     string `json:"company_url,omitempty"`
	AboutMeOrPrefs string `json:"about_me_or_prefs"`
}

func (i Inputs) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.JobDescription, validation.By(notBlank)),
	)
}

// Tracking is the only part of a snapshot that changes after creation.
type Tracking struct {
	Applied        bool   `json:"applied"`
	Platform       string `json:"platform"`
	ApplicationURL string `json:"application_url"`
	Status         string `json:"status"`
	Notes          string `json:"notes"`
}

func DefaultTracking() Tracking {
	return Tracking{Status: DefaultStatus}
}

// UnmarshalJSON fills keys missing from the record with their defaults.
func (t *Tracking) UnmarshalJSON(data []byte) error {
	type plain Tracking
	decoded := plain(DefaultTracking())
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*t = Tracking(decoded)
	return nil
}

// TrackingPatch carries the fields of an update. Nil fields are left unchanged.
type TrackingPatch struct {
	Applied        *bool   `json:"applied,omitempty"`
	Platform       *string `json:"platform,omitempty"`
	ApplicationURL *string `json:"application_url,omitempty"`
	Status         *string `json:"status,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

func (p TrackingPatch) IsEmpty() bool {
	return p == (TrackingPatch{})
}

// Apply returns t with every non-nil patch field merged in.
func (p TrackingPatch) Apply(t Tracking) Tracking {
	if p.Applied != nil {
		t.Applied = *p.Applied
	}
	if p.Platform != nil {
		t.Platform = *p.Platform
	}
	if p.ApplicationURL != nil {
		t.ApplicationURL = *p.ApplicationURL
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	return t
}

// Snapshot is one completed run.
type Snapshot struct {
	RunID              string        `json:"run_id,omitempty"`
	Timestamp          string        `json:"timestamp"`
	Inputs             Inputs        `json:"inputs"`
	ResumeExcerpt      string        `json:"resume_excerpt"`
	RequirementsText   string        `json:"requirements_text"`
	MappingText        string        `json:"mapping_text"`
	CompanyProfileText string        `json:"company_profile_text"`
	TailoredResumeText string        `json:"tailored_resume_text"`
	CoverLetterText    string        `json:"cover_letter_text"`
	EvidenceLinks      []string      `json:"evidence_links"`
	Calls              []ai.CallMeta `json:"calls,omitempty"`
	TotalCost          float64       `json:"total_cost"`
	Tracking           *Tracking     `json:"tracking"`
}

func (s Snapshot) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Timestamp, validation.By(notBlank)),
		validation.Field(&s.Inputs),
	)
}

// CurrentTracking returns the tracking record, or the defaults when absent.
func (s *Snapshot) CurrentTracking() Tracking {
	if s.Tracking == nil {
		return DefaultTracking()
	}
	return *s.Tracking
}

// CompanyLabel is the best short name for the run's company.
func (s *Snapshot) CompanyLabel() string {
	if name := strings.TrimSpace(s.Inputs.CompanyName); name != "" {
		return name
	}
	return strings.TrimSpace(s.Inputs.CompanyURL)
}

// Time parses the snapshot timestamp.
func (s *Snapshot) Time() (time.Time, error) {
	return time.Parse(TimestampLayout, s.Timestamp)
}

// FormatTimestamp renders t the way snapshots store it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimestampLayout)
}

func notBlank(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

// encodeJSON is compact and leaves HTML characters unescaped.
func encodeJSON(v any) ([]byte, error) {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return []byte(strings.TrimSuffix(b.String(), "\n")), nil
}
