// Package server exposes the dictation commands to UI collaborators as a
// local HTTP API with a server-sent event stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chaz8081/gostt-tray/internal/audio"
	"github.com/chaz8081/gostt-tray/internal/history"
	"github.com/chaz8081/gostt-tray/internal/models"
	"github.com/chaz8081/gostt-tray/internal/modes"
	"github.com/chaz8081/gostt-tray/internal/provider"
	"github.com/chaz8081/gostt-tray/internal/secrets"
	"github.com/chaz8081/gostt-tray/internal/session"
	"github.com/chaz8081/gostt-tray/internal/settings"
)

// Session is the state machine surface the API drives.
type Session interface {
	Start(ctx context.Context) (string, error)
	Stop(ctx context.Context) (string, error)
	Abort() error
	Status() session.Status
	Reprocess(ctx context.Context, id, modeKey string) (history.Item, error)
	ProcessText(ctx context.Context, modeKey, text string) (session.TextResult, error)
	Subscribe(buf int) (<-chan session.Event, func())
	Announce(t session.EventType)
}

// ModeStore lists and edits modes.
type ModeStore interface {
	List() []modes.Mode
	Get(key string) (modes.Mode, error)
	Save(m modes.Mode) error
	Delete(key string) error
}

// SettingsStore reads and replaces settings.
type SettingsStore interface {
	Get() settings.Settings
	Update(fn func(settings.Settings) settings.Settings) (settings.Settings, error)
}

// Credentials is the secret store boundary.
type Credentials interface {
	Lookup(name string) (string, secrets.Source, error)
	Set(name, secret string) error
	Delete(name string) error
}

// DeviceLister enumerates input devices.
type DeviceLister interface {
	Devices() ([]audio.Device, error)
}

// ProviderLister reports registered providers.
type ProviderLister interface {
	STTProviders() []provider.Info
	LLMProviders() []provider.Info
}

// ModelLister reports installed local models.
type ModelLister interface {
	List() ([]models.Installed, error)
}

// Deps are the collaborators behind the routes. Models may be nil.
type Deps struct {
	Session     Session
	Modes       ModeStore
	Settings    SettingsStore
	Credentials Credentials
	Devices     DeviceLister
	History     history.Store
	Providers   ProviderLister
	Models      ModelLister
}

// Server is the local control API.
type Server struct {
	deps   Deps
	engine *gin.Engine

	// keepAlive is the SSE comment interval.
	keepAlive time.Duration
}

// New builds the router.
func New(deps Deps) *Server {
	s := &Server{deps: deps, engine: gin.New(), keepAlive: 25 * time.Second}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("[Server] listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	slog.Info("[Server] stopped")
	return nil
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/health", s.health)

	api := r.Group("/api/v1")
	api.GET("/status", s.status)
	api.GET("/events", s.events)

	api.POST("/recording/start", s.startRecording)
	api.POST("/recording/stop", s.stopRecording)
	api.POST("/recording/abort", s.abortRecording)
	api.POST("/process-text", s.processText)

	api.GET("/modes", s.listModes)
	api.GET("/modes/active", s.activeMode)
	api.PUT("/modes/active", s.setActiveMode)
	api.PUT("/modes/:key", s.saveMode)
	api.DELETE("/modes/:key", s.deleteMode)

	api.GET("/devices", s.listDevices)
	api.GET("/providers", s.listProviders)
	api.GET("/models", s.listModels)

	api.GET("/settings", s.getSettings)
	api.PUT("/settings", s.putSettings)

	api.GET("/credentials/:provider", s.getCredential)
	api.PUT("/credentials/:provider", s.putCredential)
	api.DELETE("/credentials/:provider", s.deleteCredential)

	api.GET("/history", s.queryHistory)
	api.POST("/history/delete", s.deleteHistoryBulk)
	api.GET("/history/:id", s.getHistory)
	api.GET("/history/:id/export", s.exportHistory)
	api.POST("/history/:id/reprocess", s.reprocessHistory)
	api.DELETE("/history/:id", s.deleteHistory)
}

// requestLogger logs each request through slog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("[Server] request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start),
		)
	}
}
