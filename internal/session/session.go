// Package session coordinates one dictation at a time: it owns the phase,
// drives capture, hands recordings to the pipeline, records history and
// tells subscribers what happened.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/gostt-tray/internal/audio"
	"github.com/chaz8081/gostt-tray/internal/history"
	"github.com/chaz8081/gostt-tray/internal/modes"
	"github.com/chaz8081/gostt-tray/internal/pipeline"
	"github.com/chaz8081/gostt-tray/internal/settings"
)

var (
	// ErrAlreadyRecording is returned by Start while a session is open.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrNotRecording is returned by Stop and Abort outside the recording phase.
	ErrNotRecording = errors.New("not recording")
	// ErrNotReady is returned before warm-up has finished.
	ErrNotReady = errors.New("not ready")
	// ErrEmptyText is returned by ProcessText for blank input.
	ErrEmptyText = errors.New("text is empty")
	// ErrNothingToReprocess is returned by Reprocess for an item with neither
	// a transcript nor retained audio.
	ErrNothingToReprocess = errors.New("nothing to reprocess")
)

// Phase is the lifecycle state of the machine.
type Phase string

const (
	PhaseLoading    Phase = "loading"
	PhaseReady      Phase = "ready"
	PhaseRecording  Phase = "recording"
	PhaseProcessing Phase = "processing"
	PhaseError      Phase = "error"
)

// Status is an immutable snapshot of the machine.
type Status struct {
	Phase     Phase  `json:"phase"`
	Recording bool   `json:"recording"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Capture is the audio input device.
type Capture interface {
	Start(device string) error
	Stop() (*audio.Recording, error)
	Abort()
}

// ModeResolver turns a mode key and settings into a plan.
type ModeResolver interface {
	Resolve(key string, s settings.Settings) (modes.Plan, bool)
}

// Pipeline produces text from audio or from supplied text.
type Pipeline interface {
	Run(ctx context.Context, plan modes.Plan, rec *audio.Recording) pipeline.Result
	RunText(ctx context.Context, plan modes.Plan, text string) pipeline.Result
}

// HistoryStore is the subset of history.Store the machine writes to.
type HistoryStore interface {
	Insert(ctx context.Context, item history.Item) (history.Item, error)
	Get(ctx context.Context, id string) (history.Item, error)
	Update(ctx context.Context, id string, p history.Patch) (history.Item, error)
}

// Deliverer puts final text on the desktop.
type Deliverer interface {
	Deliver(ctx context.Context, text string, autoPaste bool) error
}

// ContextSource supplies surrounding text for context-aware modes.
type ContextSource interface {
	ReadText() (string, error)
}

// SettingsSource returns the current settings snapshot.
type SettingsSource interface {
	Get() settings.Settings
}

// Deps are the collaborators of a Machine. Context may be nil.
type Deps struct {
	Capture  Capture
	Modes    ModeResolver
	Pipeline Pipeline
	History  HistoryStore
	Deliver  Deliverer
	Context  ContextSource
	Settings SettingsSource
}

// Options tune a Machine.
type Options struct {
	// AudioDir receives a 16 kHz WAV per session; empty disables retention.
	AudioDir string
	// ProcessingTimeout bounds the pipeline of one session.
	ProcessingTimeout time.Duration
}

// DefaultProcessingTimeout applies when Options.ProcessingTimeout is zero.
const DefaultProcessingTimeout = 3 * time.Minute

// active is the open session. It is only touched under Machine.mu.
type active struct {
	id        string
	startedAt time.Time
	settings  settings.Settings
	context   string
}

// Machine is the session state machine.
type Machine struct {
	deps Deps
	opts Options

	mu      sync.Mutex // serializes transitions
	status  atomic.Pointer[Status]
	current *active

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Machine in the loading phase.
func New(deps Deps, opts Options) *Machine {
	if opts.ProcessingTimeout <= 0 {
		opts.ProcessingTimeout = DefaultProcessingTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		deps:    deps,
		opts:    opts,
		subs:    make(map[int]chan Event),
		baseCtx: ctx,
		cancel:  cancel,
	}
	m.status.Store(&Status{Phase: PhaseLoading})
	return m
}

// Status returns the current snapshot without blocking.
func (m *Machine) Status() Status {
	return *m.status.Load()
}

// setStatus stores a new snapshot and announces it. Callers hold mu.
func (m *Machine) setStatus(s Status) {
	s.Recording = s.Phase == PhaseRecording
	m.status.Store(&s)
	m.publish(Event{Type: EventStatusChanged, SessionID: s.SessionID, Message: s.Message})
}
