package modes

import (
	"log/slog"

	"github.com/chaz8081/gostt-tray/internal/settings"
)

// Plan is the fully resolved, immutable configuration for one session.
type Plan struct {
	ModeKey        string
	ModeName       string
	STTProvider    string
	STTModel       string
	Language       string
	AIProcessing   bool
	LLMProvider    string
	LLMModel       string
	PromptTemplate string
	OutputFormat   string
	// Context is text captured at session start when context awareness is on.
	Context string
}

// Resolve merges the mode named key with s. An unknown key resolves to the
// built-in Voice to Text mode; the second result reports whether that
// fallback was used.
func (l *Loader) Resolve(key string, s settings.Settings) (Plan, bool) {
	return Resolve(l.Modes(), key, s)
}

// Resolve merges all[key] with s. See Loader.Resolve.
func Resolve(all map[string]Mode, key string, s settings.Settings) (Plan, bool) {
	m, ok := all[key]
	fellBack := false
	if !ok {
		slog.Warn("[Modes] unknown mode, using fallback", "key", key, "fallback", DefaultKey, "error", ErrModeNotFound)
		m = fallback()
		fellBack = true
	}

	p := Plan{
		ModeKey:        m.Key,
		ModeName:       m.Name,
		STTProvider:    pick(m.STTProvider, s.DefaultSTTProvider),
		STTModel:       pick(m.STTModel, s.DefaultSTTModel),
		Language:       s.Language,
		AIProcessing:   m.AIProcessing,
		LLMProvider:    pick(m.LLMProvider, s.DefaultLLMProvider),
		LLMModel:       pick(m.LLMModel, s.DefaultLLMModel),
		PromptTemplate: m.PromptTemplate,
		OutputFormat:   m.OutputFormat,
	}
	if p.OutputFormat == "" {
		p.OutputFormat = FormatPlain
	}
	return p, fellBack
}

// pick returns *v when set and non-empty, else def.
func pick(v *string, def string) string {
	if v != nil && *v != "" {
		return *v
	}
	return def
}
