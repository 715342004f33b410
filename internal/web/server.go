package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"calgrid/internal/config"
	"calgrid/internal/ics"
	appLog "calgrid/internal/log"
	"calgrid/internal/model"
	"calgrid/internal/store"
	"calgrid/internal/timegrid"
)

const (
	occurrencesCacheSize = 64
	occurrencesCacheTTL  = 30 * time.Second
)

// Server exposes the calendar engine over HTTP: read-only occurrence and
// ICS endpoints plus one websocket session per open calendar.
type Server struct {
	cfg     *config.Config
	backend store.Backend
	engine  *gin.Engine
	reg     *prometheus.Registry

	// Expanded /api/occurrences responses keyed by view and date, to avoid
	// repeating fetch+expand work on every request.
	occurrences *expirable.LRU[string, occurrencesResponse]

	sessions *Sessions
	upgrader websocket.Upgrader
}

// NewServer constructs a Server on top of b. reg receives the web metrics
// and is served under /metrics.
func NewServer(cfg *config.Config, b store.Backend, reg *prometheus.Registry) *Server {
	s := &Server{
		cfg:         cfg,
		backend:     b,
		engine:      gin.New(),
		reg:         reg,
		occurrences: expirable.NewLRU[string, occurrencesResponse](occurrencesCacheSize, nil, occurrencesCacheTTL),
		sessions:    NewSessions(reg),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.engine.Use(gin.Recovery(), requestLogger())
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+cfg.Listen)
		s.engine.Use(s.basicAuth())
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Sessions() *Sessions {
	return s.sessions
}

// Refresh drops cached responses and asks every open session to re-fetch
// its window. It is the body of the cron refresh job.
func (s *Server) Refresh() {
	s.occurrences.Purge()
	n := s.sessions.Refresh()
	appLog.Debug("web: refresh", "sessions", n)
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})))

	api := s.engine.Group("/api")
	api.GET("/occurrences", s.handleOccurrences)
	api.GET("/export.ics", s.handleExport)
	api.GET("/sessions/stream", s.handleStream)

	if s.cfg.Store.Memory {
		store.NewHandler(s.backend).Register(s.engine.Group("/store"))
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuth guards every route except /health.
func (s *Server) basicAuth() gin.HandlerFunc {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			c.Header("WWW-Authenticate", `Basic realm="calgrid", charset="UTF-8"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		appLog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start).String(),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// occurrencesResponse is the JSON response shape for /api/occurrences.
type occurrencesResponse struct {
	View            model.ViewMode  `json:"view"`
	RangeStart      time.Time       `json:"range_start"`
	RangeEnd        time.Time       `json:"range_end"`
	DisplayTimeZone string          `json:"display_timezone"`
	WeekStart       string          `json:"week_start"`
	Occurrences     []occurrenceDTO `json:"occurrences"`
	Degraded        []string        `json:"degraded,omitempty"`
	Truncated       []string        `json:"truncated,omitempty"`
}

// occurrenceDTO is a JSON-friendly view of an occurrence.
type occurrenceDTO struct {
	Key       model.OccurrenceKey `json:"key"`
	Title     string              `json:"title"`
	Type      model.EventType     `json:"type"`
	Color     string              `json:"color"`
	Start     time.Time           `json:"start"`
	End       time.Time           `json:"end"`
	Generated bool                `json:"generated,omitempty"`
}

// handleOccurrences returns the expanded occurrences of one view.
//
// GET /api/occurrences?view=week&date=2024-01-03
//   - view: day, week (default) or month
//   - date: anchor date in the display timezone (default today)
func (s *Server) handleOccurrences(c *gin.Context) {
	loc := s.cfg.Location()
	view := model.ParseViewMode(c.Query("view"))
	anchor, err := parseDate(c.Query("date"), loc)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid date parameter; expected YYYY-MM-DD")
		return
	}

	key := string(view) + "|" + anchor.Format(time.DateOnly)
	if resp, ok := s.occurrences.Get(key); ok {
		c.JSON(http.StatusOK, resp)
		return
	}

	w := timegrid.WindowFor(view, anchor, timegrid.ParseWeekStart(s.cfg.WeekStart))
	events, err := s.backend.FetchWindow(c.Request.Context(), w.Start, w.End)
	if err != nil {
		appLog.Error("api occurrences: fetch failed", err, "view", view, "date", anchor.Format(time.DateOnly))
		writeError(c, http.StatusBadGateway, "failed to load events")
		return
	}
	res := ics.ExpandAll(events, w, s.cfg.ExpandOptions())

	resp := occurrencesResponse{
		View:            view,
		RangeStart:      w.Start,
		RangeEnd:        w.End,
		DisplayTimeZone: loc.String(),
		WeekStart:       s.cfg.WeekStart,
		Occurrences:     make([]occurrenceDTO, 0, len(res.Occurrences)),
		Degraded:        res.Degraded,
		Truncated:       res.Truncated,
	}
	for _, o := range res.Occurrences {
		resp.Occurrences = append(resp.Occurrences, occurrenceDTO{
			Key:       o.Key(),
			Title:     o.Source.Title,
			Type:      o.Source.Type,
			Color:     o.Source.DisplayColor(),
			Start:     o.Start,
			End:       o.End,
			Generated: o.IsGenerated(),
		})
	}
	s.occurrences.Add(key, resp)
	c.JSON(http.StatusOK, resp)
}

// handleExport serves the events overlapping [start, end) as an iCalendar
// file. Both bounds are dates in the display timezone; the default range
// is the month containing today.
//
// GET /api/export.ics?start=2024-01-01&end=2024-02-01
func (s *Server) handleExport(c *gin.Context) {
	loc := s.cfg.Location()
	w := timegrid.WindowFor(model.ViewMonth, time.Now().In(loc), timegrid.ParseWeekStart(s.cfg.WeekStart))
	if v := c.Query("start"); v != "" {
		start, err := parseDate(v, loc)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid start parameter; expected YYYY-MM-DD")
			return
		}
		w.Start = start
	}
	if v := c.Query("end"); v != "" {
		end, err := parseDate(v, loc)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid end parameter; expected YYYY-MM-DD")
			return
		}
		w.End = end
	}
	if !w.End.After(w.Start) {
		writeError(c, http.StatusBadRequest, "end must be after start")
		return
	}

	events, err := s.backend.FetchWindow(c.Request.Context(), w.Start, w.End)
	if err != nil {
		appLog.Error("api export: fetch failed", err)
		writeError(c, http.StatusBadGateway, "failed to load events")
		return
	}

	c.Header("Content-Type", "text/calendar; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="calgrid.ics"`)
	c.Status(http.StatusOK)
	opts := ics.ExportOptions{Name: "calgrid", Monthly: ics.ParseMonthlyMode(s.cfg.Grid.Monthly)}
	if err := ics.ExportWith(c.Writer, events, opts); err != nil {
		appLog.Error("api export: write failed", err)
	}
}

func parseDate(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return timegrid.DayStart(time.Now().In(loc)), nil
	}
	return time.ParseInLocation(time.DateOnly, v, loc)
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// StartServer serves the API on cfg.Listen and runs the refresh job until
// ctx is done, then shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, b store.Backend, reg *prometheus.Registry) error {
	s := NewServer(cfg, b, reg)

	stopCron, err := s.StartRefresh(cfg.RefreshCron)
	if err != nil {
		return err
	}
	defer stopCron()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.sessions.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}
