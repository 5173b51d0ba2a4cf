// Package pipeline turns a job description and a résumé into tailored
// application material and records each run.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/spigell/job-buddy/internal/ai"
	"github.com/spigell/job-buddy/internal/logger"
)

// Call labels, also used as the label of each recorded call.
const (
	LabelRequirements = "extract_requirements"
	LabelMatch        = "match_requirements"
	LabelResearch     = "company_research"
	LabelTailorResume = "tailor_resume"
	LabelCoverLetter  = "cover_letter"

	// DefaultMinResults is how many sources the research step asks for.
	DefaultMinResults = 5
)

// StepModel selects the model and budget of one step.
type StepModel struct {
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max-tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// Models configures every generation step. Research is used only when no
// web researcher is available.
type Models struct {
	Requirements StepModel `mapstructure:"requirements"`
	Match        StepModel `mapstructure:"match"`
	Research     StepModel `mapstructure:"research"`
	Resume       StepModel `mapstructure:"resume"`
	CoverLetter  StepModel `mapstructure:"cover-letter"`
}

func (m StepModel) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Model, validation.Required),
		validation.Field(&m.MaxTokens, validation.Min(1)),
		validation.Field(&m.Temperature, validation.Min(0.0), validation.Max(2.0)),
	)
}

func (m Models) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Requirements),
		validation.Field(&m.Match),
		validation.Field(&m.Research),
		validation.Field(&m.Resume),
		validation.Field(&m.CoverLetter),
	)
}

func DefaultModels() Models {
	return Models{
		Requirements: StepModel{Model: "gpt-4o-mini", MaxTokens: 1500, Temperature: 0.7},
		Match:        StepModel{Model: "gpt-4o-mini", MaxTokens: 1800, Temperature: 0.7},
		Research:     StepModel{Model: "gpt-4o-mini", MaxTokens: 1200, Temperature: 0.7},
		Resume:       StepModel{Model: "gpt-4o", MaxTokens: 2400, Temperature: 0.7},
		CoverLetter:  StepModel{Model: "gpt-4o-mini", MaxTokens: 900, Temperature: 0.7},
	}
}

// StepResult is the trimmed text of a step and the call that produced it.
type StepResult struct {
	Text string
	Meta ai.CallMeta
}

// ResearchResult is the company profile with the links found for it.
type ResearchResult struct {
	Text          string
	EvidenceLinks []string
	Meta          ai.CallMeta
}

// Steps runs the individual generation steps.
type Steps struct {
	generator  ai.Generator
	researcher ai.Researcher
	models     Models
	minResults int
	logger     *zap.Logger
}

// NewSteps wires the steps. researcher may be nil, in which case the research
// step asks the generator without web access.
func NewSteps(generator ai.Generator, researcher ai.Researcher, models Models, logger *zap.Logger) *Steps {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Steps{
		generator:  generator,
		researcher: researcher,
		models:     models,
		minResults: DefaultMinResults,
		logger:     logger,
	}
}

func (s *Steps) ExtractRequirements(ctx context.Context, jobDescription string) (*StepResult, error) {
	return s.generate(ctx, LabelRequirements, s.models.Requirements, requirementsPrompt(jobDescription))
}

func (s *Steps) MatchRequirementsToResume(ctx context.Context, resumeText, requirementsText string) (*StepResult, error) {
	return s.generate(ctx, LabelMatch, s.models.Match, matchPrompt(requirementsText, resumeText))
}

func (s *Steps) ResearchCompany(ctx context.Context, companyName, companyURL string) (*ResearchResult, error) {
	prompt := researchPrompt(companyName, companyURL)

	if s.researcher == nil {
		s.logger.Warn("no web researcher configured, company profile is written without web search",
			zap.String("call", LabelResearch))
		res, err := s.generate(ctx, LabelResearch, s.models.Research, prompt)
		if err != nil {
			return nil, err
		}
		return &ResearchResult{Text: res.Text, EvidenceLinks: ExtractEvidenceLinks(res.Text), Meta: res.Meta}, nil
	}

	res, err := s.researcher.Research(ctx, ai.ResearchRequest{
		Prompt:       prompt,
		Instructions: fmt.Sprintf("Use web search and consult at least %d credible sources.", s.minResults),
		Label:        LabelResearch,
	})
	if err != nil {
		return nil, errors.Wrap(err, LabelResearch)
	}

	text := strings.TrimSpace(res.Text)
	links := evidenceLinks(text, res.Sources)
	s.logger.Info("step finished",
		append(logger.CallFields(res.Meta), zap.Int("evidence_links", len(links)))...,
	)
	return &ResearchResult{Text: text, EvidenceLinks: links, Meta: res.Meta}, nil
}

func (s *Steps) TailorResume(ctx context.Context, resumeText, mappingText, companyProfileText string) (*StepResult, error) {
	return s.generate(ctx, LabelTailorResume, s.models.Resume, tailorResumePrompt(resumeText, mappingText, companyProfileText))
}

func (s *Steps) DraftCoverLetter(ctx context.Context, requirementsText, companyProfileText, aboutMe string) (*StepResult, error) {
	return s.generate(ctx, LabelCoverLetter, s.models.CoverLetter, coverLetterPrompt(requirementsText, companyProfileText, aboutMe))
}

func (s *Steps) generate(ctx context.Context, label string, model StepModel, prompt string) (*StepResult, error) {
	res, err := s.generator.Generate(ctx, ai.Request{
		Messages:       []ai.Message{{Role: ai.RoleUser, Content: prompt}},
		Model:          model.Model,
		Temperature:    model.Temperature,
		MaxTokens:      model.MaxTokens,
		ResponseFormat: ai.FormatText,
		Label:          label,
	})
	if err != nil {
		return nil, errors.Wrap(err, label)
	}

	s.logger.Info("step finished", logger.CallFields(res.Meta)...)
	return &StepResult{Text: strings.TrimSpace(res.Text), Meta: res.Meta}, nil
}
