package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"calgrid/internal/calendar"
	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

const writeTimeout = 5 * time.Second

// Sessions tracks the open websocket calendars.
type Sessions struct {
	mu   sync.Mutex
	open map[string]*session

	gauge  prometheus.Gauge
	inputs *prometheus.CounterVec
}

type session struct {
	id     string
	inputs chan calendar.Msg
	cancel context.CancelFunc
}

// NewSessions registers the session metrics on reg, which may be nil.
func NewSessions(reg prometheus.Registerer) *Sessions {
	s := &Sessions{
		open: make(map[string]*session),
		gauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "calgrid_web_sessions",
			Help: "Open calendar sessions.",
		}),
		inputs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calgrid_web_session_inputs_total",
			Help: "Host messages received by calendar sessions.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{s.gauge, s.inputs} {
			if err := reg.Register(c); err != nil {
				appLog.Warn("web: session metric not registered", "err", err)
			}
		}
	}
	return s
}

func (s *Sessions) add(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open[sess.id] = sess
	s.gauge.Set(float64(len(s.open)))
}

func (s *Sessions) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, id)
	s.gauge.Set(float64(len(s.open)))
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}

// Refresh queues a Refresh on every open session and returns how many
// accepted it. Busy sessions are skipped.
func (s *Sessions) Refresh() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.open {
		select {
		case sess.inputs <- calendar.Refresh{}:
			n++
		default:
		}
	}
	return n
}

// CloseAll ends every open session.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.open {
		sess.cancel()
	}
}

// StartRefresh schedules Refresh on schedule, a standard five-field cron
// expression. An empty schedule schedules nothing. The returned func stops the
// scheduler and waits for a running job.
func (s *Server) StartRefresh(schedule string) (func(), error) {
	if schedule == "" {
		return func() {}, nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, s.Refresh); err != nil {
		return nil, err
	}
	c.Start()
	appLog.Info("refresh job scheduled", "cron", schedule)
	return func() { <-c.Stop().Done() }, nil
}

// outbound is one websocket frame sent to the host.
type outbound struct {
	Type     string             `json:"type"`
	Session  string             `json:"session,omitempty"`
	Snapshot *calendar.Snapshot `json:"snapshot,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// handleStream runs one calendar per websocket connection. Inbound frames
// are host messages (see calendar.DecodeInput); every processed message is
// answered with a snapshot frame.
//
// GET /api/sessions/stream?view=week&date=2024-01-03
func (s *Server) handleStream(c *gin.Context) {
	loc := s.cfg.Location()
	anchor, err := parseDate(c.Query("date"), loc)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid date parameter; expected YYYY-MM-DD")
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		appLog.Warn("web: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sess := &session{id: uuid.NewString(), inputs: make(chan calendar.Msg, 16), cancel: cancel}
	s.sessions.add(sess)
	defer s.sessions.remove(sess.id)
	appLog.Info("web: session opened", "session", sess.id, "remote", c.ClientIP())

	var writeMu sync.Mutex
	send := func(f outbound) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(f); err != nil {
			appLog.Debug("web: websocket write failed", "session", sess.id, "err", err)
			cancel()
		}
	}

	cal := calendar.New(s.backend, s.cfg.CalendarOptions())
	done := make(chan error, 1)
	go func() {
		done <- calendar.Loop(ctx, cal, sess.inputs, func(snap calendar.Snapshot) {
			send(outbound{Type: "snapshot", Session: sess.id, Snapshot: &snap})
		})
	}()

	sess.inputs <- calendar.SetView{Mode: model.ParseViewMode(c.Query("view")), Anchor: anchor}

	go func() {
		// A blocked ReadMessage only returns once the connection is closed.
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !errors.Is(ctx.Err(), context.Canceled) {
				appLog.Warn("web: websocket read failed", "session", sess.id, "err", err)
			}
			break
		}
		msg, err := calendar.DecodeInput(data)
		if err != nil {
			s.sessions.inputs.WithLabelValues("rejected").Inc()
			send(outbound{Type: "error", Session: sess.id, Error: err.Error()})
			continue
		}
		s.sessions.inputs.WithLabelValues("accepted").Inc()
		select {
		case sess.inputs <- msg:
		case <-ctx.Done():
		}
	}

	cancel()
	if err := <-done; err != nil {
		appLog.Error("web: session loop failed", err, "session", sess.id)
	}
	appLog.Info("web: session closed", "session", sess.id)
}
