package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calgrid/internal/config"
	"calgrid/internal/model"
	"calgrid/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func weekly() model.CalendarEvent {
	return model.CalendarEvent{
		ID:         "review",
		Title:      "Review",
		Type:       model.TypeEvent,
		Start:      time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Recurrence: model.ParseRule("FREQ=WEEKLY"),
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config), seed ...model.CalendarEvent) (*Server, *store.Memory) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RefreshCron = ""
	if mutate != nil {
		mutate(cfg)
	}
	mem := store.NewMemory(seed...)
	return NewServer(cfg, mem, prometheus.NewRegistry()), mem
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthBypassesBasicAuth(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "pw"}
	})

	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = get(t, s, "/api/occurrences")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/occurrences?date=2024-01-03", nil)
	req.SetBasicAuth("admin", "pw")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOccurrences(t *testing.T) {
	s, mem := newTestServer(t, nil, weekly())

	rec := get(t, s, "/api/occurrences?view=month&date=2024-01-17")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp occurrencesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.ViewMonth, resp.View)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), resp.RangeStart)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), resp.RangeEnd)
	require.Len(t, resp.Occurrences, 5)
	assert.False(t, resp.Occurrences[0].Generated)
	assert.True(t, resp.Occurrences[4].Generated)
	assert.Equal(t, 4, resp.Occurrences[4].Key.Index)

	// Served from cache until the refresh job purges it.
	_, err := mem.Create(t.Context(), model.Fields{
		Title: "Extra",
		Start: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(get(t, s, "/api/occurrences?view=month&date=2024-01-17").Body.Bytes(), &resp))
	assert.Len(t, resp.Occurrences, 5)

	s.Refresh()
	require.NoError(t, json.Unmarshal(get(t, s, "/api/occurrences?view=month&date=2024-01-17").Body.Bytes(), &resp))
	assert.Len(t, resp.Occurrences, 6)
}

func TestOccurrencesBadDate(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := get(t, s, "/api/occurrences?date=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid date")
}

func TestExport(t *testing.T) {
	s, _ := newTestServer(t, nil, weekly())

	rec := get(t, s, "/api/export.ics?start=2024-01-01&end=2024-02-01")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	body := rec.Body.String()
	assert.Equal(t, 1, strings.Count(body, "BEGIN:VEVENT"))
	assert.Contains(t, body, "RRULE:FREQ=WEEKLY")
	assert.Contains(t, body, "UID:review")

	rec = get(t, s, "/api/export.ics?start=2024-02-01&end=2024-01-01")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoreRoutesOnlyInMemoryMode(t *testing.T) {
	s, _ := newTestServer(t, nil, weekly())
	rec := get(t, s, "/store/events?start=2024-01-01T00:00:00Z&end=2024-01-08T00:00:00Z")
	assert.Equal(t, http.StatusOK, rec.Code)

	s, _ = newTestServer(t, func(c *config.Config) {
		c.Store.Memory = false
		c.Store.BaseURL = "https://cal.example.com"
	})
	rec = get(t, s, "/store/events?start=2024-01-01T00:00:00Z&end=2024-01-08T00:00:00Z")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "calgrid_web_sessions")
}

func TestStartRefreshRejectsBadSchedule(t *testing.T) {
	s, _ := newTestServer(t, nil)
	_, err := s.StartRefresh("not a schedule")
	assert.Error(t, err)

	stop, err := s.StartRefresh("")
	require.NoError(t, err)
	stop()
}

func readFrame(t *testing.T, conn *websocket.Conn) outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f outbound
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// readUntil reads frames until one satisfies ok.
func readUntil(t *testing.T, conn *websocket.Conn, ok func(outbound) bool) outbound {
	t.Helper()
	for i := 0; i < 20; i++ {
		if f := readFrame(t, conn); ok(f) {
			return f
		}
	}
	t.Fatal("expected frame never arrived")
	return outbound{}
}

func TestSessionStream(t *testing.T) {
	s, mem := newTestServer(t, nil, weekly())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/stream?view=week&date=2024-01-03"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	loaded := readUntil(t, conn, func(f outbound) bool {
		return f.Snapshot != nil && len(f.Snapshot.Columns) == 7 && len(f.Snapshot.Columns[0].Blocks) == 1
	})
	assert.NotEmpty(t, loaded.Session)
	assert.Equal(t, 1, s.Sessions().Len())

	// Drag the Monday 09:00 block to Wednesday 11:00 on the default 120px grid.
	for _, frame := range []string{
		`{"type":"pointer_down","x":60,"y":560}`,
		`{"type":"pointer_move","x":300,"y":660}`,
		`{"type":"pointer_up","x":300,"y":660}`,
	} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
	}
	readUntil(t, conn, func(f outbound) bool {
		return f.Snapshot != nil && f.Snapshot.State == "idle" && f.Snapshot.InFlight == 0 &&
			len(f.Snapshot.Columns[2].Blocks) == 1
	})
	ev := mem.All()[0]
	assert.Equal(t, time.Date(2024, 1, 3, 11, 0, 0, 0, time.UTC), ev.Start)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"warp"}`)))
	f := readUntil(t, conn, func(f outbound) bool { return f.Type == "error" })
	assert.Contains(t, f.Error, "unknown type")

	assert.Equal(t, 1, s.Sessions().Refresh())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return s.Sessions().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
