package store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calgrid/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func at(d, hour int) time.Time {
	return time.Date(2024, 1, d, hour, 0, 0, 0, time.UTC)
}

func newServer(t *testing.T, b Backend) *httptest.Server {
	t.Helper()
	r := gin.New()
	NewHandler(b).Register(r.Group("/v1"))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientAgainstHandler(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	srv := newServer(t, mem)
	c := NewClient(srv.URL+"/v1/", "secret", time.Second)

	created, err := c.Create(ctx, model.Fields{Title: "Plan", Start: at(2, 9), End: at(2, 10)})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.TypeEvent, created.Type)

	title := "Plan v2"
	updated, err := c.Update(ctx, created.ID, model.Patch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Plan v2", updated.Title)
	assert.True(t, updated.Start.Equal(at(2, 9)))

	moved, err := c.Move(ctx, created.ID, at(3, 14), at(3, 15))
	require.NoError(t, err)
	assert.True(t, moved.Start.Equal(at(3, 14)))

	events, err := c.FetchWindow(ctx, at(1, 0), at(8, 0))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Plan v2", events[0].Title)

	events, err = c.FetchWindow(ctx, at(8, 0), at(15, 0))
	require.NoError(t, err)
	assert.Empty(t, events)

	require.NoError(t, c.Remove(ctx, created.ID))
	err = c.Remove(ctx, created.ID)
	require.Error(t, err)
	assert.True(t, NotFound(err))

	_, err = c.Create(ctx, model.Fields{Title: "", Start: at(2, 9), End: at(2, 10)})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, model.ErrEmptyTitle.Error(), se.Message)
}

func TestClientConditionalFetch(t *testing.T) {
	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`[{"id":"a","title":"A","startTime":"2024-01-02T09:00:00Z","endTime":"2024-01-02T10:00:00Z","type":"event"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second)
	for i := 0; i < 2; i++ {
		events, err := c.FetchWindow(context.Background(), at(1, 0), at(8, 0))
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "a", events[0].ID)
	}
	assert.EqualValues(t, 2, hits.Load())
	assert.EqualValues(t, 1, notModified.Load())
}

func TestClientSurfacesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	c := NewClient(srv.URL, "", time.Second)

	_, err := c.FetchWindow(context.Background(), at(1, 0), at(8, 0))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, "boom", se.Message)

	srv.Close()
	_, err = c.FetchWindow(context.Background(), at(1, 0), at(8, 0))
	assert.Error(t, err)
}

func TestHandlerRejectsBadWindow(t *testing.T) {
	srv := newServer(t, NewMemory())

	resp, err := http.Get(srv.URL + "/v1/events?start=yesterday&end=today")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMemoryWindowIncludesRecurring(t *testing.T) {
	ctx := context.Background()
	end := at(10, 0)
	mem := NewMemory(
		model.CalendarEvent{ID: "plain", Title: "p", Start: at(1, 9), End: at(1, 10)},
		model.CalendarEvent{ID: "daily", Title: "d", Start: at(1, 9), End: at(1, 10), Recurrence: model.ParseRule("FREQ=DAILY")},
		model.CalendarEvent{ID: "ended", Title: "e", Start: at(1, 9), End: at(1, 10), Recurrence: model.ParseRule("FREQ=DAILY"), RecurrenceEnd: &end},
		model.CalendarEvent{ID: "future", Title: "f", Start: at(30, 9), End: at(30, 10)},
	)

	events, err := mem.FetchWindow(ctx, at(15, 0), at(22, 0))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "daily", events[0].ID)

	events, err = mem.FetchWindow(ctx, at(1, 0), at(2, 0))
	require.NoError(t, err)
	assert.Len(t, events, 3)

	_, err = mem.Move(ctx, "plain", at(2, 10), at(2, 9))
	assert.ErrorIs(t, err, model.ErrInvalidRange)
	_, err = mem.Update(ctx, "missing", model.Patch{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, mem.All(), 4)
}

func TestAdapterDropsStaleFetch(t *testing.T) {
	a := NewAdapter(NewMemory())
	w1 := model.Window{Start: at(1, 0), End: at(8, 0)}
	w2 := model.Window{Start: at(8, 0), End: at(15, 0)}

	s1 := a.BeginFetch(w1)
	s2 := a.BeginFetch(w2)

	assert.False(t, a.ApplyFetch(s1, []model.CalendarEvent{{ID: "old"}}))
	assert.False(t, a.Loaded())
	assert.True(t, a.ApplyFetch(s2, []model.CalendarEvent{{ID: "b", Start: at(9, 9)}, {ID: "a", Start: at(8, 9)}}))
	assert.Equal(t, w2, a.Window())

	evs := a.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, "a", evs[0].ID)

	a.Put(model.CalendarEvent{ID: "c", Start: at(8, 7)})
	a.Put(model.CalendarEvent{ID: "b", Title: "changed", Start: at(9, 9)})
	evs = a.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, "c", evs[0].ID)
	got, ok := a.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, "changed", got.Title)

	a.Delete("a")
	_, ok = a.Lookup("a")
	assert.False(t, ok)
	assert.Len(t, a.Events(), 2)

	// Mutating the returned copy does not touch the list.
	evs = a.Events()
	evs[0].Title = "mutated"
	got, _ = a.Lookup(evs[0].ID)
	assert.NotEqual(t, "mutated", got.Title)
}

func TestAdapterSpliceOvertakesRunningFetch(t *testing.T) {
	a := NewAdapter(NewMemory())
	w := model.Window{Start: at(1, 0), End: at(8, 0)}

	seq := a.BeginFetch(w)
	a.Put(model.CalendarEvent{ID: "moved", Start: at(2, 11)})
	assert.False(t, a.Current(seq))
	assert.True(t, a.Overtaken(seq))
	assert.False(t, a.ApplyFetch(seq, []model.CalendarEvent{{ID: "moved", Start: at(2, 9)}}))

	got, ok := a.Lookup("moved")
	require.True(t, ok)
	assert.Equal(t, at(2, 11), got.Start)

	again := a.BeginFetch(w)
	assert.True(t, a.Current(again))
	assert.False(t, a.Overtaken(again))
	assert.True(t, a.ApplyFetch(again, []model.CalendarEvent{{ID: "moved", Start: at(2, 11)}}))

	next := a.BeginFetch(w)
	a.Delete("moved")
	assert.True(t, a.Overtaken(next))
	assert.False(t, a.Overtaken(seq), "older fetches are stale, not overtaken")
}

func TestInstrumented(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	require.NoError(t, err, "registering twice reuses collectors")

	b := Instrument(NewMemory(), m)
	ctx := context.Background()
	_, err = b.Create(ctx, model.Fields{Title: "x", Start: at(1, 9), End: at(1, 10)})
	require.NoError(t, err)
	assert.Error(t, b.Remove(ctx, "missing"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("remove", "error")))
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://api.example.com/...(redacted)", redactURL("https://api.example.com/v1/events?token=abc"))
	assert.Equal(t, "store://...(redacted)", redactURL("not a url"))
}
