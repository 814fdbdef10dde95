package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fieldtrack/internal/analytics"
	"fieldtrack/internal/metrics"
	"fieldtrack/internal/store"
	"fieldtrack/logger"
)

// handleIngest accepts one upload batch from a device. The body is form
// encoded: player_id plus gps_raw holding newline separated NMEA lines.
// Malformed lines and quality rejects are counted, never fatal; the
// device gets a summary so firmware can log its own drop rate.
func (s *Server) handleIngest(c *gin.Context) {
	playerID, err := strconv.Atoi(c.PostForm("player_id"))
	if err != nil || playerID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player_id"})
		return
	}

	if !s.limiters.allow(playerID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	raw := c.PostForm("gps_raw")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty gps_raw"})
		return
	}

	result := s.processor.ProcessBatch(playerID, raw)

	stored, err := s.store.InsertFixes(c.Request.Context(), result.Accepted)
	if err != nil {
		s.log.WithComponent("server").WithError(err).Error("batch persistence aborted")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}

	if s.hub != nil {
		s.hub.Publish(result.Accepted)
	}
	if s.archiver != nil {
		s.archiver.Add(result.Accepted)
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_id": result.BatchID,
		"lines":    result.Lines,
		"parsed":   result.Parsed,
		"skipped":  result.Skipped,
		"rejected": result.Rejected,
		"stored":   stored,
	})
}

// handleHistory returns the playback series for a time window. All
// correction passes are toggled per request; defaults come from
// configuration. The response is always a JSON array, empty included.
func (s *Server) handleHistory(c *gin.Context) {
	metrics.AddHistoryQueries(1)

	opts := analytics.Options{
		StaticHold:       true,
		HoldThresholdKmh: s.cfg.Analytics.HoldThresholdKmh,
		SmoothWindow:     s.cfg.Analytics.SmoothingWindow,
		MaxSpeedKmh:      s.cfg.Analytics.MaxSpeedKmh,
	}
	if v := c.Query("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold"})
			return
		}
		opts.HoldThresholdKmh = t
	}
	if v := c.Query("hold"); v == "0" || v == "false" {
		opts.StaticHold = false
	}
	if v := c.Query("smooth"); v == "1" || v == "true" {
		opts.Smooth = true
	}

	base, err := parseBaseStrategy(c.DefaultQuery("base", s.cfg.Analytics.BaseStrategy))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opts.Base = base

	now := time.Now().UTC()
	from, to, err := s.resolveWindow(c, now, &opts)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, store.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	fixes, err := s.store.QueryRange(c.Request.Context(), from, to)
	if err != nil {
		s.log.WithComponent("server").WithError(err).Error("history query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	points := s.engine.Derive(fixes, opts)
	c.JSON(http.StatusOK, points)
}

// resolveWindow picks the query range: an explicit session wins, else a
// rolling lookback of n hours ending now. A session with surveyed base
// coordinates also pins the correction reference.
func (s *Server) resolveWindow(c *gin.Context, now time.Time, opts *analytics.Options) (time.Time, time.Time, error) {
	fallback := time.Duration(s.cfg.Analytics.DefaultHours) * time.Hour

	if v := c.Query("session"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid session id")
		}
		sess, err := s.store.GetSession(c.Request.Context(), id)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if sess.BaseLatitude != nil && sess.BaseLongitude != nil {
			opts.BaseReference = &analytics.LatLng{Lat: *sess.BaseLatitude, Lng: *sess.BaseLongitude}
		}
		from, to := sess.Window(now, fallback)
		return from, to, nil
	}

	hours := s.cfg.Analytics.DefaultHours
	if v := c.Query("hours"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h <= 0 {
			return time.Time{}, time.Time{}, errors.New("invalid hours")
		}
		hours = h
	}
	return now.Add(-time.Duration(hours) * time.Hour), now, nil
}

func parseBaseStrategy(v string) (analytics.BaseStrategy, error) {
	switch v {
	case "", "off":
		return analytics.BaseOff, nil
	case "exact":
		return analytics.BaseExact, nil
	case "nearest":
		return analytics.BaseNearest, nil
	default:
		return analytics.BaseOff, errors.New("invalid base strategy")
	}
}

func (s *Server) handleListSessions(c *gin.Context) {
	sessions, err := s.store.ListSessions(c.Request.Context())
	if err != nil {
		s.log.WithComponent("server").WithError(err).Error("list sessions failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req struct {
		Name      string     `json:"name" binding:"required"`
		StartedAt *time.Time `json:"started_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session payload"})
		return
	}
	startedAt := time.Now().UTC()
	if req.StartedAt != nil {
		startedAt = req.StartedAt.UTC()
	}

	sess, err := s.store.CreateSession(c.Request.Context(), req.Name, startedAt)
	if err != nil {
		s.log.WithComponent("server").WithError(err).Error("create session failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) handleUpdateBase(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	var req struct {
		Latitude  *float64 `json:"latitude" binding:"required"`
		Longitude *float64 `json:"longitude" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude required"})
		return
	}
	lat, lon := *req.Latitude, *req.Longitude
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "coordinates out of range"})
		return
	}

	err = s.store.UpdateSessionBase(c.Request.Context(), id, lat, lon)
	if errors.Is(err, store.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		s.log.WithComponent("server").WithError(err).Error("update base failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}

	s.log.WithComponent("server").WithFields(logger.Fields{
		"session":   id,
		"latitude":  lat,
		"longitude": lon,
	}).Info("base coordinates updated")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleEndSession(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	err = s.store.EndSession(c.Request.Context(), id, time.Now().UTC())
	if errors.Is(err, store.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		s.log.WithComponent("server").WithError(err).Error("end session failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
