package cmd

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/manifoldco/promptui"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-buddy/internal/ai"
	"github.com/spigell/job-buddy/internal/ai/gemini"
	"github.com/spigell/job-buddy/internal/ai/openai"
	"github.com/spigell/job-buddy/internal/documents"
	"github.com/spigell/job-buddy/internal/headhunter"
	"github.com/spigell/job-buddy/internal/history"
	"github.com/spigell/job-buddy/internal/pipeline"
	"github.com/spigell/job-buddy/internal/secrets"
	"github.com/spigell/job-buddy/internal/utils"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"

	defaultGenerateTimeout = 10 * time.Minute
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Extract requirements, research the company and draft a tailored résumé and cover letter",
	Run: func(cmd *cobra.Command, _ []string) {
		generate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().String("job-file", "", "file with the job description")
	generateCmd.Flags().String("job-text", "", "job description text")
	generateCmd.Flags().String("hh-vacancy", "", "hh.ru vacancy id to use as the job description")
	generateCmd.Flags().StringP("resume", "r", "", "résumé file, PDF or plain text")
	generateCmd.Flags().String("resume-text", "", "résumé text, used when --resume is not a PDF")
	generateCmd.Flags().String("company-name", "", "company name")
	generateCmd.Flags().String("company-url", "", "company website")
	generateCmd.Flags().String("about-me", "", "a few words about you and your preferences")
	generateCmd.Flags().String("about-me-file", "", "file with a few words about you and your preferences")
	generateCmd.Flags().Duration("timeout", defaultGenerateTimeout, "upper bound for the whole run")
	generateCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}

// generate is the main command for the cli.
func generate(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup()

	logger.Info("starting the job-buddy", zap.String("version", version))

	req, vacancyURL, err := buildRequest(ctx, cmd, config, logger)
	if err != nil {
		logger.Fatal("preparing the run", zap.Error(err), zap.Strings("hint", errors.GetAllHints(err)))
	}

	generator, researcher, err := newAIClients(ctx, config, logger)
	if err != nil {
		logger.Fatal("creating ai clients", zap.Error(err), zap.Strings("hint", errors.GetAllHints(err)))
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		printRequest(req, researcher != nil)

		prompt := promptui.Select{
			Label: "Proceed?",
			Items: []string{PromptYes, PromptNo},
		}
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if action == PromptNo {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = defaultGenerateTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	store := history.New(config.HistoryFile, logger)
	steps := pipeline.NewSteps(generator, researcher, config.Models, logger)
	orchestrator := pipeline.NewOrchestrator(steps, documents.NewExtractor(logger), store, logger)

	spinner, _ := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start("generating application material")
	snapshot, err := orchestrator.Run(ctx, req)
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil {
		cancel()
		logger.Fatal("generation failed", zap.Error(err), zap.Strings("hint", errors.GetAllHints(err)))
	}

	printSnapshot(0, snapshot)
	pterm.Success.Printfln("saved to %s as entry 0", store.Path())
	if vacancyURL != "" {
		pterm.Info.Printfln("after applying run: %s history update 0 --applied --status Applied --platform %s --url %s",
			app, headhunter.Platform, vacancyURL)
	}
}

// buildRequest collects the run input from flags. The second value is the
// hh.ru vacancy url when one was used.
func buildRequest(ctx context.Context, cmd *cobra.Command, config *Config, logger *zap.Logger) (pipeline.Request, string, error) {
	flags := cmd.Flags()
	jobText, _ := flags.GetString("job-text")
	jobFile, _ := flags.GetString("job-file")
	vacancyID, _ := flags.GetString("hh-vacancy")
	resumePath, _ := flags.GetString("resume")
	resumeText, _ := flags.GetString("resume-text")
	companyName, _ := flags.GetString("company-name")
	companyURL, _ := flags.GetString("company-url")
	aboutMe, _ := flags.GetString("about-me")
	aboutMeFile, _ := flags.GetString("about-me-file")

	var vacancyURL string
	req := pipeline.Request{
		CompanyName: strings.TrimSpace(companyName),
		CompanyURL:  strings.TrimSpace(companyURL),
	}

	jobDescription, err := textOrFile(jobText, jobFile, "job description")
	if err != nil {
		return req, "", err
	}

	if vacancyID = strings.TrimSpace(vacancyID); vacancyID != "" {
		vacancy, err := fetchVacancy(ctx, config, vacancyID, logger)
		if err != nil {
			return req, "", err
		}
		if jobDescription == "" {
			if jobDescription, err = vacancy.JobDescription(); err != nil {
				return req, "", errors.Wrap(err, "render vacancy")
			}
		}
		if req.CompanyName == "" {
			req.CompanyName = strings.TrimSpace(vacancy.Employer.Name)
		}
		if req.CompanyURL == "" {
			req.CompanyURL = strings.TrimSpace(vacancy.Employer.AlternateURL)
		}
		vacancyURL = strings.TrimSpace(vacancy.AlternateURL)
		logger.Info("using hh.ru vacancy",
			zap.String("vacancy_id", vacancy.ID),
			zap.String("vacancy_name", vacancy.Name),
			zap.String("vacancy_url", vacancy.AlternateURL),
		)
	}

	if strings.TrimSpace(jobDescription) == "" {
		return req, "", errors.WithHint(pipeline.ErrEmptyJobDescription, "use --job-text, --job-file or --hh-vacancy")
	}
	req.JobDescription = jobDescription

	if resumePath = strings.TrimSpace(resumePath); resumePath != "" {
		source, err := documents.LoadSource(resumePath)
		if err != nil {
			return req, "", err
		}
		req.Resume = source
	}
	if len(req.Resume.PDF) == 0 && strings.TrimSpace(req.Resume.Text) == "" {
		req.Resume.Text = resumeText
	}

	if req.AboutMeOrPrefs, err = textOrFile(aboutMe, aboutMeFile, "about me"); err != nil {
		return req, "", err
	}

	return req, vacancyURL, nil
}

func fetchVacancy(ctx context.Context, config *Config, id string, logger *zap.Logger) (*headhunter.Vacancy, error) {
	token, err := secrets.Optional(secrets.Source{
		Name: "headhunter token",
		File: config.HeadHunter.TokenFile,
	})
	if err != nil {
		return nil, err
	}

	hh := headhunter.New(logger, token)
	vacancy, err := hh.GetVacancy(ctx, id)
	if err != nil {
		if errors.Is(err, headhunter.ErrNotFound) {
			return nil, errors.WithHint(err, "check the vacancy id in the hh.ru link")
		}
		return nil, err
	}
	return vacancy, nil
}

func newAIClients(ctx context.Context, config *Config, logger *zap.Logger) (ai.Generator, ai.Researcher, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name: "openai api key",
		File: config.OpenAI.APIKeyFile,
		Env:  "OPENAI_API_KEY",
	})
	if err != nil && !errors.Is(err, secrets.ErrNotConfigured) {
		return nil, nil, err
	}

	generator, err := openai.NewClient(openai.Config{
		APIKey:            apiKey,
		BaseURL:           config.OpenAI.BaseURL,
		Timeout:           config.OpenAI.Timeout,
		Retry:             config.Retry,
		Prices:            config.Pricing,
		RequestsPerMinute: config.OpenAI.RequestsPerMinute,
		MaxLogLength:      config.MaxLogLength,
		Logger:            logger,
	})
	if err != nil {
		return nil, nil, err
	}

	geminiKey, err := secrets.Optional(secrets.Source{
		Name: "gemini api key",
		File: config.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, nil, err
	}

	if geminiKey == "" {
		logger.Warn("company research runs without web search",
			zap.String("hint", "set GEMINI_API_KEY or gemini.api-key-file to enable it"),
		)
		return generator, nil, nil
	}

	researcher, err := gemini.NewResearcher(ctx, gemini.Config{
		APIKey:       geminiKey,
		Model:        config.Gemini.Model,
		Retry:        config.Retry,
		Prices:       config.Pricing,
		MaxLogLength: config.MaxLogLength,
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("web research enabled", zap.String("model", researcher.Model()))

	return generator, researcher, nil
}

// textOrFile prefers inline text and reads path otherwise. Both empty is not an error.
func textOrFile(text, path, name string) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}
	if path = strings.TrimSpace(path); path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "read %s file %q", name, path)
	}
	return string(data), nil
}

func printRequest(req pipeline.Request, webResearch bool) {
	resume := "plain text"
	if len(req.Resume.PDF) > 0 {
		resume = "PDF document"
	}

	pterm.DefaultSection.Println("Run")
	_ = pterm.DefaultTable.WithData(pterm.TableData{
		{"Company", valueOr(req.CompanyName, "(unknown)")},
		{"Company URL", valueOr(req.CompanyURL, "-")},
		{"Résumé", resume},
		{"Web research", yesNo(webResearch)},
		{"Job description", utils.TruncateForLog(strings.ReplaceAll(req.JobDescription, "\n", " "), 80)},
	}).Render()
}
