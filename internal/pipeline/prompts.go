package pipeline

import (
	_ "embed"
	"strings"
)

var (
	//go:embed prompts/guidelines.md
	guidelines string
	//go:embed prompts/requirements.md
	requirementsTemplate string
	//go:embed prompts/match.md
	matchTemplate string
	//go:embed prompts/research.md
	researchTemplate string
	//go:embed prompts/tailor_resume.md
	tailorResumeTemplate string
	//go:embed prompts/cover_letter.md
	coverLetterTemplate string
)

const unknownCompany = "(unknown)"

// buildPrompt fills {{KEY}} placeholders in a single pass, so values that
// happen to contain placeholders are left alone.
func buildPrompt(template string, values map[string]string) string {
	pairs := make([]string, 0, 2*(len(values)+1))
	pairs = append(pairs, "{{GUIDELINES}}", strings.TrimSpace(guidelines))
	for key, value := range values {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(template))
}

func requirementsPrompt(jobDescription string) string {
	return buildPrompt(requirementsTemplate, map[string]string{
		"JOB_DESCRIPTION": strings.TrimSpace(jobDescription),
	})
}

func matchPrompt(requirementsText, resumeText string) string {
	return buildPrompt(matchTemplate, map[string]string{
		"REQUIREMENTS_TEXT": strings.TrimSpace(requirementsText),
		"RESUME_TEXT":       strings.TrimSpace(resumeText),
	})
}

func researchPrompt(companyName, companyURL string) string {
	name := strings.TrimSpace(companyName)
	if name == "" {
		name = unknownCompany
	}
	return buildPrompt(researchTemplate, map[string]string{
		"COMPANY_NAME": name,
		"COMPANY_URL":  strings.TrimSpace(companyURL),
	})
}

func tailorResumePrompt(resumeText, mappingText, companyProfileText string) string {
	return buildPrompt(tailorResumeTemplate, map[string]string{
		"RESUME_TEXT":          strings.TrimSpace(resumeText),
		"MAPPING_TEXT":         strings.TrimSpace(mappingText),
		"COMPANY_PROFILE_TEXT": strings.TrimSpace(companyProfileText),
	})
}

func coverLetterPrompt(requirementsText, companyProfileText, aboutMe string) string {
	return buildPrompt(coverLetterTemplate, map[string]string{
		"REQUIREMENTS_TEXT":    strings.TrimSpace(requirementsText),
		"COMPANY_PROFILE_TEXT": strings.TrimSpace(companyProfileText),
		"ABOUT_ME":             strings.TrimSpace(aboutMe),
	})
}
