package server

import (
	"io"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chaz8081/gostt-tray/internal/session"
)

// events streams session events as server-sent events. The first event is
// the current status so a new client starts from a known state.
func (s *Server) events(c *gin.Context) {
	ch, unsubscribe := s.deps.Session.Subscribe(32)
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	st := s.deps.Session.Status()
	c.SSEvent(string(session.EventStatusChanged), session.Event{
		Type:   session.EventStatusChanged,
		Status: st,
		At:     time.Now(),
	})
	c.Writer.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	slog.Debug("[Server] event stream opened", "remote", c.ClientIP())
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-ticker.C:
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		}
	})
	slog.Debug("[Server] event stream closed", "remote", c.ClientIP())
}
