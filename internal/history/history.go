// Package history persists one record per dictation session and supports
// search, reprocessing updates, deletion and export.
package history

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for ids with no record.
	ErrNotFound = errors.New("history item not found")
	// ErrStorage wraps every failure of the underlying database.
	ErrStorage = errors.New("history storage failure")
)

// Item is one persisted session.
type Item struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	ModeKey       string    `json:"mode_key"`
	AudioPath     *string   `json:"audio_path"`
	TranscriptRaw string    `json:"transcript_raw"`
	OutputFinal   string    `json:"output_final"`
	STTProvider   string    `json:"stt_provider"`
	STTModel      string    `json:"stt_model"`
	LLMProvider   *string   `json:"llm_provider"`
	LLMModel      *string   `json:"llm_model"`
	DurationMS    int64     `json:"duration_ms"`
	Error         *string   `json:"error"`
}

// Patch holds the output-related fields rewritten by reprocessing. The
// output fields are always written and nil clears a nullable column. The
// transcript fields are written only when non-nil, for items whose audio
// was transcribed again.
type Patch struct {
	ModeKey     string
	OutputFinal string
	LLMProvider *string
	LLMModel    *string
	Error       *string

	TranscriptRaw *string
	STTProvider   *string
	STTModel      *string
}

// Query selects a page of items, newest first. Search is a
// case-insensitive substring matched against the raw transcript and the
// final output.
type Query struct {
	Search string
	Limit  int
	Offset int
}

// DefaultLimit applies when Query.Limit is not positive.
const DefaultLimit = 50

// MaxLimit caps Query.Limit.
const MaxLimit = 500

// Store is the history persistence boundary.
type Store interface {
	Insert(ctx context.Context, item Item) (Item, error)
	Get(ctx context.Context, id string) (Item, error)
	Update(ctx context.Context, id string, p Patch) (Item, error)
	Query(ctx context.Context, q Query) ([]Item, error)
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) (int, error)
	Close() error
}

// StringPtr returns nil for "" and &s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns *s or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
