package cmd

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/spigell/job-buddy/internal/history"
)

func printSnapshot(index int, s *history.Snapshot) {
	pterm.DefaultHeader.Printfln("#%d %s (%s)", index, valueOr(s.CompanyLabel(), "(unknown company)"), s.Timestamp)

	sections := []struct {
		title string
		text  string
	}{
		{"Requirements", s.RequirementsText},
		{"Résumé mapping", s.MappingText},
		{"Company profile", s.CompanyProfileText},
		{"Tailored résumé", s.TailoredResumeText},
		{"Cover letter", s.CoverLetterText},
	}
	for _, section := range sections {
		pterm.DefaultSection.Println(section.title)
		pterm.Println(valueOr(section.text, "(empty)"))
	}

	if len(s.EvidenceLinks) > 0 {
		pterm.DefaultSection.Println("Evidence links")
		items := make([]pterm.BulletListItem, 0, len(s.EvidenceLinks))
		for _, link := range s.EvidenceLinks {
			items = append(items, pterm.BulletListItem{Level: 0, Text: link})
		}
		_ = pterm.DefaultBulletList.WithItems(items).Render()
	}

	printTracking(s.CurrentTracking())

	if len(s.Calls) > 0 {
		pterm.DefaultSection.Println("Calls")
		data := pterm.TableData{{"call", "model", "prompt", "completion", "cost"}}
		for _, call := range s.Calls {
			data = append(data, []string{
				call.Label,
				call.Model,
				fmt.Sprint(call.Usage.PromptTokens),
				fmt.Sprint(call.Usage.CompletionTokens),
				formatCost(call.Cost),
			})
		}
		_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}
	pterm.Info.Printfln("total cost %s", formatCost(s.TotalCost))
}

func printTracking(t history.Tracking) {
	pterm.DefaultSection.Println("Tracking")
	_ = pterm.DefaultTable.WithData(pterm.TableData{
		{"Status", t.Status},
		{"Applied", yesNo(t.Applied)},
		{"Platform", valueOr(t.Platform, "-")},
		{"Application URL", valueOr(t.ApplicationURL, "-")},
		{"Notes", valueOr(t.Notes, "-")},
	}).Render()
}

func historyTable(entries []history.Entry) pterm.TableData {
	data := pterm.TableData{{"idx", "timestamp", "company", "status", "applied", "cost"}}
	for _, entry := range entries {
		tracking := entry.Snapshot.CurrentTracking()
		data = append(data, []string{
			fmt.Sprint(entry.Index),
			entry.Snapshot.Timestamp,
			valueOr(entry.Snapshot.CompanyLabel(), "-"),
			tracking.Status,
			yesNo(tracking.Applied),
			formatCost(entry.Snapshot.TotalCost),
		})
	}
	return data
}

func formatCost(cost float64) string {
	return fmt.Sprintf("$%.6f", cost)
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
