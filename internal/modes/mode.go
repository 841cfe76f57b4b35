// Package modes defines dictation modes, loads user modes from JSON files and
// resolves a mode plus the current settings into an execution plan.
package modes

import "errors"

// Output formats.
const (
	FormatPlain    = "plain"
	FormatMarkdown = "markdown"
)

// DefaultKey is the mode used when a requested key cannot be resolved.
const DefaultKey = "voice_to_text"

var (
	// ErrModeNotFound is returned by lookups of unknown keys. Resolve never
	// returns it; it falls back to DefaultKey instead.
	ErrModeNotFound = errors.New("mode not found")
	// ErrBuiltinMode is returned when deleting a built-in mode.
	ErrBuiltinMode = errors.New("built-in modes cannot be deleted")
)

// Mode is a named dictation configuration. Nil provider and model fields
// inherit from settings; AIProcessing and OutputFormat never do.
type Mode struct {
	Key            string  `json:"key" validate:"required,max=64,slug"`
	Name           string  `json:"name" validate:"required,max=128"`
	Description    string  `json:"description"`
	STTProvider    *string `json:"stt_provider"`
	STTModel       *string `json:"stt_model"`
	AIProcessing   bool    `json:"ai_processing"`
	LLMProvider    *string `json:"llm_provider"`
	LLMModel       *string `json:"llm_model"`
	PromptTemplate string  `json:"prompt_template"`
	OutputFormat   string  `json:"output_format" validate:"omitempty,oneof=plain markdown"`
	Builtin        bool    `json:"builtin"`
}

const contextBlock = `{{#if context}}
Context (for reference only):
{{context}}
{{/if}}`

// Builtins returns the immutable built-in modes in display order.
func Builtins() []Mode {
	return []Mode{
		{
			Key:          DefaultKey,
			Name:         "Voice to Text",
			Description:  "Simple voice transcription without AI processing",
			OutputFormat: FormatPlain,
			Builtin:      true,
		},
		{
			Key:          "message",
			Name:         "Message",
			Description:  "Short casual message, cleaned up for chat/SMS",
			AIProcessing: true,
			PromptTemplate: `You are a helpful assistant that cleans up voice transcriptions into short, casual messages suitable for chat or SMS.

Instructions:
- Fix any transcription errors or unclear words
- Remove filler words (um, uh, like, you know)
- Keep the casual, conversational tone
- Keep it concise
- Do not add any preamble or explanation, just output the cleaned message

` + contextBlock + `

Transcript to clean up:
{{transcript}}

Cleaned message:`,
			OutputFormat: FormatPlain,
			Builtin:      true,
		},
		{
			Key:          "email",
			Name:         "Email",
			Description:  "Format transcription as a professional email with subject and body",
			AIProcessing: true,
			PromptTemplate: `You are a helpful assistant that converts voice transcriptions into professional emails.

Instructions:
- Create a clear, professional email from the spoken content
- Include a concise subject line
- Structure the body with proper greeting, content, and sign-off
- Fix any transcription errors
- Maintain a professional but friendly tone
- Format as:
  Subject: [subject]

  [body]

` + contextBlock + `

Transcript:
{{transcript}}

Email:`,
			OutputFormat: FormatPlain,
			Builtin:      true,
		},
		{
			Key:          "note",
			Name:         "Note",
			Description:  "Convert transcription into organized bullet points",
			AIProcessing: true,
			PromptTemplate: `You are a helpful assistant that converts voice transcriptions into organized notes.

Instructions:
- Extract key points from the transcription
- Organize into clear bullet points
- Group related items together
- Fix any transcription errors
- Be concise but capture all important information

` + contextBlock + `

Transcript:
{{transcript}}

Notes:`,
			OutputFormat: FormatMarkdown,
			Builtin:      true,
		},
		{
			Key:          "meeting",
			Name:         "Meeting",
			Description:  "Create meeting summary with key points and action items",
			AIProcessing: true,
			PromptTemplate: `You are a helpful assistant that creates meeting summaries from transcriptions.

Instructions:
- Create a structured meeting summary
- Include:
  - Brief overview (2-3 sentences)
  - Key discussion points
  - Decisions made
  - Action items (with owners if mentioned)
- Fix any transcription errors
- Be concise but comprehensive

` + contextBlock + `

Transcript:
{{transcript}}

Meeting Summary:`,
			OutputFormat: FormatMarkdown,
			Builtin:      true,
		},
		{
			Key:          "super",
			Name:         "Super",
			Description:  "Adaptive mode that intelligently formats based on content",
			AIProcessing: true,
			PromptTemplate: `You are a helpful assistant that intelligently processes voice transcriptions.

Instructions:
- Analyze the content and determine the best output format
- If it's a question, provide a helpful answer
- If it's a task or reminder, format it clearly
- If it's a message, clean it up appropriately
- If it's notes or ideas, organize them logically
- If it's code-related, format appropriately with any relevant syntax
- Fix any transcription errors
- Output only the processed result, no explanation

` + contextBlock + `

Transcript:
{{transcript}}

Output:`,
			OutputFormat: FormatPlain,
			Builtin:      true,
		},
	}
}

// fallback returns the built-in Voice to Text mode.
func fallback() Mode {
	return Builtins()[0]
}
