package modes

import (
	"regexp"
	"strings"
)

const transcriptVar = "{{transcript}}"

var contextBlockRe = regexp.MustCompile(`(?s)\{\{#if context\}\}(.*?)\{\{/if\}\}`)

// RenderPrompt fills a prompt template. The {{#if context}}...{{/if}} block
// is kept only when context is non-empty. Substitution is single-pass, so
// placeholder text inside the transcript is left verbatim. A template
// without {{transcript}} gets the transcript appended.
func RenderPrompt(template, transcript, context, language string) string {
	tmpl := contextBlockRe.ReplaceAllStringFunc(template, func(block string) string {
		if context == "" {
			return ""
		}
		return contextBlockRe.FindStringSubmatch(block)[1]
	})

	hasTranscript := strings.Contains(tmpl, transcriptVar)
	r := strings.NewReplacer(
		transcriptVar, transcript,
		"{{language}}", language,
		"{{context}}", context,
	)
	out := strings.TrimSpace(r.Replace(tmpl))

	if !hasTranscript {
		if out == "" {
			return transcript
		}
		out += "\n\n" + transcript
	}
	return out
}
