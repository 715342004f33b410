package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"calgrid/internal/model"
)

// Memory is an in-process Backend. It backs `serve --memory`, the replay
// command and tests.
type Memory struct {
	mu     sync.RWMutex
	events map[string]model.CalendarEvent
	newID  func() string
}

func NewMemory(seed ...model.CalendarEvent) *Memory {
	m := &Memory{
		events: make(map[string]model.CalendarEvent, len(seed)),
		newID:  uuid.NewString,
	}
	for _, ev := range seed {
		if ev.ID == "" {
			ev.ID = m.newID()
		}
		m.events[ev.ID] = ev
	}
	return m
}

func (m *Memory) FetchWindow(ctx context.Context, start, end time.Time) ([]model.CalendarEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.CalendarEvent, 0, len(m.events))
	for _, ev := range m.events {
		if MayOverlap(ev, start, end) {
			out = append(out, ev)
		}
	}
	sortEvents(out)
	return out, nil
}

func (m *Memory) Create(ctx context.Context, f model.Fields) (model.CalendarEvent, error) {
	if err := ctx.Err(); err != nil {
		return model.CalendarEvent{}, err
	}
	if err := f.Validate(); err != nil {
		return model.CalendarEvent{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ev := f.Event(m.newID())
	m.events[ev.ID] = ev
	return ev, nil
}

func (m *Memory) Update(ctx context.Context, id string, p model.Patch) (model.CalendarEvent, error) {
	if err := ctx.Err(); err != nil {
		return model.CalendarEvent{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[id]
	if !ok {
		return model.CalendarEvent{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	next := p.Apply(ev)
	if !next.End.After(next.Start) {
		return model.CalendarEvent{}, fmt.Errorf("update %s: %w", id, model.ErrInvalidRange)
	}
	m.events[id] = next
	return next, nil
}

func (m *Memory) Move(ctx context.Context, id string, start, end time.Time) (model.CalendarEvent, error) {
	return m.Update(ctx, id, model.Patch{Start: &start, End: &end})
}

func (m *Memory) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[id]; !ok {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	delete(m.events, id)
	return nil
}

// All returns every stored event ordered by start.
func (m *Memory) All() []model.CalendarEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.CalendarEvent, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev)
	}
	sortEvents(out)
	return out
}
