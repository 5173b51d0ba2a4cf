package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/job-buddy/internal/ai"
	"github.com/spigell/job-buddy/internal/documents"
	"github.com/spigell/job-buddy/internal/history"
	"github.com/spigell/job-buddy/internal/logger"
	"github.com/spigell/job-buddy/internal/utils"
)

var (
	// ErrNoResumeText is returned when neither the document nor the fallback text yield a résumé.
	ErrNoResumeText = errors.New("no resume text available, supply a PDF or plain text")
	// ErrEmptyJobDescription is returned for a blank job description.
	ErrEmptyJobDescription = errors.New("job description is empty")
)

// Request is the input of one run.
type Request struct {
	JobDescription string
	Resume         documents.Source
	CompanyName    string
	CompanyURL     string
	AboutMeOrPrefs string
}

// ResumeResolver turns a résumé source into text.
type ResumeResolver interface {
	Resolve(src documents.Source) (string, error)
}

// SnapshotAppender persists a finished run.
type SnapshotAppender interface {
	Append(snapshot *history.Snapshot) error
}

// Orchestrator runs the five steps in order and records the result.
type Orchestrator struct {
	steps   *Steps
	resumes ResumeResolver
	store   SnapshotAppender
	logger  *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewOrchestrator(steps *Steps, resumes ResumeResolver, store SnapshotAppender, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		steps:   steps,
		resumes: resumes,
		store:   store,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Run executes the pipeline. Nothing is stored unless every step succeeds and
// ctx is still alive afterwards.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*history.Snapshot, error) {
	if strings.TrimSpace(req.JobDescription) == "" {
		return nil, ErrEmptyJobDescription
	}

	resumeText, err := o.resumes.Resolve(req.Resume)
	if err != nil {
		return nil, errors.Wrap(err, "resolve resume")
	}
	if resumeText == "" {
		return nil, ErrNoResumeText
	}

	runID := o.newID()
	log := logger.WithRunID(o.logger, runID)
	log.Info("starting pipeline",
		zap.String("company", strings.TrimSpace(req.CompanyName)),
		zap.Int("resume_length", len([]rune(resumeText))),
	)

	requirements, err := o.steps.ExtractRequirements(ctx, req.JobDescription)
	if err != nil {
		return nil, err
	}

	mapping, err := o.steps.MatchRequirementsToResume(ctx, resumeText, requirements.Text)
	if err != nil {
		return nil, err
	}

	research, err := o.steps.ResearchCompany(ctx, req.CompanyName, req.CompanyURL)
	if err != nil {
		return nil, err
	}

	tailored, err := o.steps.TailorResume(ctx, resumeText, mapping.Text, research.Text)
	if err != nil {
		return nil, err
	}

	coverLetter, err := o.steps.DraftCoverLetter(ctx, requirements.Text, research.Text, req.AboutMeOrPrefs)
	if err != nil {
		return nil, err
	}

	calls := []ai.CallMeta{requirements.Meta, mapping.Meta, research.Meta, tailored.Meta, coverLetter.Meta}
	total := 0.0
	for _, call := range calls {
		total += call.Cost
	}

	tracking := history.DefaultTracking()
	snapshot := &history.Snapshot{
		RunID:     runID,
		Timestamp: history.FormatTimestamp(o.now()),
		Inputs: history.Inputs{
			JobDescription: req.JobDescription,
			CompanyName:    strings.TrimSpace(req.CompanyName),
			CompanyURL:     strings.TrimSpace(req.CompanyURL),
			AboutMeOrPrefs: req.AboutMeOrPrefs,
		},
		ResumeExcerpt:      utils.Prefix(resumeText, history.MaxResumeExcerpt),
		RequirementsText:   requirements.Text,
		MappingText:        mapping.Text,
		CompanyProfileText: research.Text,
		TailoredResumeText: tailored.Text,
		CoverLetterText:    coverLetter.Text,
		EvidenceLinks:      research.EvidenceLinks,
		Calls:              calls,
		TotalCost:          ai.RoundCost(total),
		Tracking:           &tracking,
	}
	if snapshot.EvidenceLinks == nil {
		snapshot.EvidenceLinks = []string{}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "pipeline abandoned before saving")
	}

	if err := o.store.Append(snapshot); err != nil {
		return nil, errors.Wrap(err, "save run")
	}

	log.Info("pipeline finished",
		zap.String("timestamp", snapshot.Timestamp),
		zap.Int("evidence_links", len(snapshot.EvidenceLinks)),
		zap.Float64("total_cost", snapshot.TotalCost),
	)
	return snapshot, nil
}
