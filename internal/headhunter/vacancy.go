package headhunter

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

type Vacancy struct {
	ID   string `json:"id,omitempty" mapstructure:"id"`
	Name string `json:"name,omitempty" mapstructure:"name"`
	Area struct {
		Name string `json:"name,omitempty" mapstructure:"name"`
	} `json:"area,omitempty" mapstructure:"area"`
	Salary *struct {
		From     int    `json:"from,omitempty" mapstructure:"from"`
		To       int    `json:"to,omitempty" mapstructure:"to"`
		Currency string `json:"currency,omitempty" mapstructure:"currency"`
	} `json:"salary,omitempty" mapstructure:"salary"`
	Experience struct {
		Name string `json:"name,omitempty" mapstructure:"name"`
	} `json:"experience,omitempty" mapstructure:"experience"`
	Schedule struct {
		Name string `json:"name,omitempty" mapstructure:"name"`
	} `json:"schedule,omitempty" mapstructure:"schedule"`
	Employer struct {
		ID           string `json:"id,omitempty" mapstructure:"id"`
		Name         string `json:"name,omitempty" mapstructure:"name"`
		AlternateURL string `json:"alternate_url,omitempty" mapstructure:"alternate_url"`
	} `json:"employer,omitempty" mapstructure:"employer"`
	AlternateURL string `json:"alternate_url,omitempty" mapstructure:"alternate_url"`
	Description  string `json:"description,omitempty" mapstructure:"description"`
	KeySkills    []struct {
		Name string `json:"name,omitempty" mapstructure:"name"`
	} `json:"key_skills,omitempty" mapstructure:"key_skills"`
	Archived bool `json:"archived,omitempty" mapstructure:"archived"`
}

// GetVacancy fetches a single vacancy by id.
func (c *Client) GetVacancy(ctx context.Context, id string) (*Vacancy, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("vacancy id is required")
	}

	apiURL := fmt.Sprintf("%s/vacancies/%s", c.APIURL, url.PathEscape(id))

	var raw map[string]any
	if err := c.getJSON(ctx, apiURL, &raw); err != nil {
		return nil, errors.Wrapf(err, "get vacancy %s", id)
	}

	var vacancy Vacancy
	if err := mapstructure.Decode(raw, &vacancy); err != nil {
		return nil, errors.Wrapf(err, "decode vacancy %s", id)
	}

	c.logger.Debug("got vacancy from HH.ru",
		zap.String("vacancy_id", vacancy.ID),
		zap.String("employer", vacancy.Employer.Name),
		zap.Bool("archived", vacancy.Archived),
	)

	return &vacancy, nil
}

// PlainDescription converts the HTML description to text, one block per line.
func (v *Vacancy) PlainDescription() (string, error) {
	if strings.TrimSpace(v.Description) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(v.Description))
	if err != nil {
		return "", errors.Wrap(err, "parse vacancy description")
	}

	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("li").PrependHtml("- ")
	doc.Find("p, li, div, ul, ol, h1, h2, h3, h4, h5, h6").AppendHtml("\n")

	return cleanWhitespace(doc.Text()), nil
}

// JobDescription renders the vacancy as job description text.
func (v *Vacancy) JobDescription() (string, error) {
	description, err := v.PlainDescription()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(v.Name))
	b.WriteString("\n")
	if v.Employer.Name != "" {
		fmt.Fprintf(&b, "Company: %s\n", v.Employer.Name)
	}
	if v.Area.Name != "" {
		fmt.Fprintf(&b, "Location: %s\n", v.Area.Name)
	}
	if v.Experience.Name != "" {
		fmt.Fprintf(&b, "Experience: %s\n", v.Experience.Name)
	}
	if v.Schedule.Name != "" {
		fmt.Fprintf(&b, "Schedule: %s\n", v.Schedule.Name)
	}
	if salary := v.salaryText(); salary != "" {
		fmt.Fprintf(&b, "Salary: %s\n", salary)
	}
	if description != "" {
		b.WriteString("\n")
		b.WriteString(description)
		b.WriteString("\n")
	}
	if skills := v.SkillNames(); len(skills) > 0 {
		fmt.Fprintf(&b, "\nKey skills: %s\n", strings.Join(skills, ", "))
	}

	return strings.TrimSpace(b.String()), nil
}

func (v *Vacancy) SkillNames() []string {
	names := make([]string, 0, len(v.KeySkills))
	for _, skill := range v.KeySkills {
		if name := strings.TrimSpace(skill.Name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (v *Vacancy) salaryText() string {
	if v.Salary == nil {
		return ""
	}
	s := v.Salary
	switch {
	case s.From > 0 && s.To > 0:
		return fmt.Sprintf("%d-%d %s", s.From, s.To, s.Currency)
	case s.From > 0:
		return fmt.Sprintf("from %d %s", s.From, s.Currency)
	case s.To > 0:
		return fmt.Sprintf("up to %d %s", s.To, s.Currency)
	default:
		return ""
	}
}

func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
