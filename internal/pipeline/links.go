package pipeline

import "strings"

// MaxEvidenceLinks caps the links kept from a research answer.
const MaxEvidenceLinks = 5

// ExtractEvidenceLinks returns lines of text that start with http:// or
// https://, in order, at most MaxEvidenceLinks of them. URLs embedded in
// other lines are not found; callers should treat the result as a hint.
func ExtractEvidenceLinks(text string) []string {
	links := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			links = append(links, line)
			if len(links) == MaxEvidenceLinks {
				break
			}
		}
	}
	return links
}

// evidenceLinks prefers links written in the answer and falls back to the
// provider's grounding sources.
func evidenceLinks(text string, sources []string) []string {
	if links := ExtractEvidenceLinks(text); len(links) > 0 {
		return links
	}

	links := []string{}
	seen := make(map[string]struct{}, len(sources))
	for _, source := range sources {
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		if _, ok := seen[source]; ok {
			continue
		}
		seen[source] = struct{}{}
		links = append(links, source)
		if len(links) == MaxEvidenceLinks {
			break
		}
	}
	return links
}
