package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractEvidenceLinks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "none", text: "no links here", want: []string{}},
		{name: "trimmed lines", text: "Evidence Links\n  https://a.example  \nhttp://b.example\n", want: []string{"https://a.example", "http://b.example"}},
		{name: "inline urls ignored", text: "- https://a.example\nsee https://b.example", want: []string{}},
		{
			name: "capped at five",
			text: strings.Repeat("https://x.example\n", 7),
			want: []string{"https://x.example", "https://x.example", "https://x.example", "https://x.example", "https://x.example"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractEvidenceLinks(tt.text))
		})
	}
}

func TestEvidenceLinksFallback(t *testing.T) {
	assert.Equal(t, []string{"https://a.example"}, evidenceLinks("https://a.example", []string{"https://b.example"}))

	sources := []string{" ", "https://1", "https://2", "https://1", "https://3", "https://4", "https://5", "https://6"}
	assert.Equal(t, []string{"https://1", "https://2", "https://3", "https://4", "https://5"}, evidenceLinks("nothing", sources))

	assert.Equal(t, []string{}, evidenceLinks("", nil))
}

func TestBuildPromptSinglePass(t *testing.T) {
	prompt := requirementsPrompt("  Go role mentioning {{RESUME_TEXT}} and {{GUIDELINES}}  ")
	assert.Contains(t, prompt, "Go role mentioning {{RESUME_TEXT}} and {{GUIDELINES}}")
	assert.Contains(t, prompt, "Ground rules:")
	assert.NotContains(t, prompt, "{{JOB_DESCRIPTION}}")

	research := researchPrompt("", "")
	assert.Contains(t, research, "Company name: (unknown)")
}

func TestModelsValidate(t *testing.T) {
	assert.NoError(t, DefaultModels().Validate())

	models := DefaultModels()
	models.Resume.Model = ""
	models.CoverLetter.MaxTokens = 0
	err := models.Validate()
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "Resume")
		assert.Contains(t, err.Error(), "CoverLetter")
	}
}
