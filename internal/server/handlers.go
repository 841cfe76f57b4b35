package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chaz8081/gostt-tray/internal/history"
	"github.com/chaz8081/gostt-tray/internal/modes"
	"github.com/chaz8081/gostt-tray/internal/secrets"
	"github.com/chaz8081/gostt-tray/internal/session"
	"github.com/chaz8081/gostt-tray/internal/settings"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	success(c, s.deps.Session.Status())
}

// Recording

func (s *Server) startRecording(c *gin.Context) {
	id, err := s.deps.Session.Start(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, gin.H{"session_id": id})
}

func (s *Server) stopRecording(c *gin.Context) {
	id, err := s.deps.Session.Stop(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, gin.H{"session_id": id})
}

func (s *Server) abortRecording(c *gin.Context) {
	if err := s.deps.Session.Abort(); err != nil {
		failErr(c, err)
		return
	}
	success(c, s.deps.Session.Status())
}

type processTextRequest struct {
	ModeKey string `json:"mode_key"`
	Text    string `json:"text" binding:"required"`
}

func (s *Server) processText(c *gin.Context) {
	var req processTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	res, err := s.deps.Session.ProcessText(c.Request.Context(), req.ModeKey, req.Text)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, res)
}

// Modes

func (s *Server) listModes(c *gin.Context) {
	success(c, s.deps.Modes.List())
}

func (s *Server) activeMode(c *gin.Context) {
	key := s.deps.Settings.Get().ActiveModeKey
	m, err := s.deps.Modes.Get(key)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, m)
}

type activeModeRequest struct {
	Key string `json:"key" binding:"required"`
}

func (s *Server) setActiveMode(c *gin.Context) {
	var req activeModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	m, err := s.deps.Modes.Get(req.Key)
	if err != nil {
		failErr(c, err)
		return
	}
	if _, err := s.deps.Settings.Update(func(cur settings.Settings) settings.Settings {
		cur.ActiveModeKey = m.Key
		return cur
	}); err != nil {
		failErr(c, err)
		return
	}
	s.deps.Session.Announce(session.EventModesChanged)
	success(c, m)
}

func (s *Server) saveMode(c *gin.Context) {
	var m modes.Mode
	if err := c.ShouldBindJSON(&m); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if m.Key == "" {
		m.Key = c.Param("key")
	}
	if m.Key != c.Param("key") {
		fail(c, http.StatusBadRequest, "mode key does not match path")
		return
	}
	if err := s.deps.Modes.Save(m); err != nil {
		failErr(c, err)
		return
	}
	saved, err := s.deps.Modes.Get(m.Key)
	if err != nil {
		failErr(c, err)
		return
	}
	s.deps.Session.Announce(session.EventModesChanged)
	success(c, saved)
}

func (s *Server) deleteMode(c *gin.Context) {
	if err := s.deps.Modes.Delete(c.Param("key")); err != nil {
		failErr(c, err)
		return
	}
	s.deps.Session.Announce(session.EventModesChanged)
	success(c, nil)
}

// Devices, providers and models

func (s *Server) listDevices(c *gin.Context) {
	devices, err := s.deps.Devices.Devices()
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, devices)
}

func (s *Server) listProviders(c *gin.Context) {
	success(c, gin.H{
		"stt": s.deps.Providers.STTProviders(),
		"llm": s.deps.Providers.LLMProviders(),
	})
}

func (s *Server) listModels(c *gin.Context) {
	if s.deps.Models == nil {
		success(c, []any{})
		return
	}
	installed, err := s.deps.Models.List()
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, installed)
}

// Settings

func (s *Server) getSettings(c *gin.Context) {
	success(c, s.deps.Settings.Get())
}

func (s *Server) putSettings(c *gin.Context) {
	var next settings.Settings
	if err := c.ShouldBindJSON(&next); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	saved, err := s.deps.Settings.Update(func(settings.Settings) settings.Settings { return next })
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, saved)
}

// Credentials

type credentialStatus struct {
	Provider string         `json:"provider"`
	Present  bool           `json:"present"`
	Source   secrets.Source `json:"source"`
}

func (s *Server) getCredential(c *gin.Context) {
	name := c.Param("provider")
	_, src, err := s.deps.Credentials.Lookup(name)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, credentialStatus{Provider: name, Present: src != secrets.SourceNone, Source: src})
}

type credentialRequest struct {
	Secret string `json:"secret" binding:"required"`
}

func (s *Server) putCredential(c *gin.Context) {
	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	name := c.Param("provider")
	if err := s.deps.Credentials.Set(name, req.Secret); err != nil {
		if errors.Is(err, secrets.ErrEmptySecret) {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		failErr(c, err)
		return
	}
	success(c, credentialStatus{Provider: name, Present: true, Source: secrets.SourceFile})
}

func (s *Server) deleteCredential(c *gin.Context) {
	if err := s.deps.Credentials.Delete(c.Param("provider")); err != nil {
		failErr(c, err)
		return
	}
	success(c, nil)
}

// History

func (s *Server) queryHistory(c *gin.Context) {
	q := history.Query{Search: strings.TrimSpace(c.Query("search"))}
	var err error
	if q.Limit, err = intParam(c, "limit"); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if q.Offset, err = intParam(c, "offset"); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	items, err := s.deps.History.Query(c.Request.Context(), q)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, items)
}

func (s *Server) getHistory(c *gin.Context) {
	item, err := s.deps.History.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, item)
}

func (s *Server) exportHistory(c *gin.Context) {
	format := c.DefaultQuery("format", history.FormatTXT)
	item, err := s.deps.History.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	body, err := history.Export(item, format)
	if err != nil {
		failErr(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+item.ID+"."+format+`"`)
	c.Data(http.StatusOK, history.ContentType(format), []byte(body))
}

type reprocessRequest struct {
	ModeKey string `json:"mode_key"`
}

func (s *Server) reprocessHistory(c *gin.Context) {
	var req reprocessRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}
	}
	item, err := s.deps.Session.Reprocess(c.Request.Context(), c.Param("id"), req.ModeKey)
	if err != nil && item.ID == "" {
		failErr(c, err)
		return
	}
	// A failed run still updates the item and carries the error on it.
	success(c, item)
}

func (s *Server) deleteHistory(c *gin.Context) {
	if err := s.deps.History.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	s.deps.Session.Announce(session.EventHistoryUpdated)
	success(c, nil)
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

func (s *Server) deleteHistoryBulk(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	n, err := s.deps.History.DeleteMany(c.Request.Context(), req.IDs)
	if n > 0 {
		s.deps.Session.Announce(session.EventHistoryUpdated)
	}
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, gin.H{"deleted": n})
}

func intParam(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}
