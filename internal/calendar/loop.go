package calendar

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	appLog "calgrid/internal/log"
)

// resultBuffer bounds the number of finished commands waiting for Update.
const resultBuffer = 32

// Loop runs a Calendar: it feeds inputs and command results through Update
// on a single goroutine and runs commands concurrently. publish is called
// with a fresh snapshot after every message.
//
// Loop returns when ctx is done or inputs is closed, after all running
// commands have returned.
func Loop(ctx context.Context, cal *Calendar, inputs <-chan Msg, publish func(Snapshot)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	results := make(chan Msg, resultBuffer)

	run := func(cmds []Cmd) {
		for _, cmd := range cmds {
			g.Go(func() error {
				msg := cmd(gctx)
				select {
				case results <- msg:
				case <-gctx.Done():
				}
				return nil
			})
		}
	}

	step := func(msg Msg) {
		run(cal.Update(msg))
		if publish != nil {
			publish(cal.Snapshot())
		}
	}

	for {
		select {
		case <-ctx.Done():
			cal.Update(Unmount{})
			cancel()
			return g.Wait()
		case msg, ok := <-inputs:
			if !ok {
				cal.Update(Unmount{})
				cancel()
				return g.Wait()
			}
			step(msg)
		case msg := <-results:
			step(msg)
		}
	}
}

// Drive applies msgs in order and runs every resulting command inline,
// depth first, until no work is left. It is the deterministic counterpart
// of Loop used by tests and the replay command.
func Drive(ctx context.Context, cal *Calendar, msgs ...Msg) {
	for _, msg := range msgs {
		pending := cal.Update(msg)
		for len(pending) > 0 {
			cmd := pending[0]
			pending = pending[1:]
			pending = append(cal.Update(cmd(ctx)), pending...)
		}
	}
}

// input is the wire envelope of a host message.
type input struct {
	Type string `json:"type"`
}

// DecodeInput decodes one host message such as
// {"type":"pointer_down","x":120,"y":540}.
func DecodeInput(data []byte) (Msg, error) {
	var env input
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}

	var msg Msg
	switch env.Type {
	case "set_view":
		msg = &SetView{}
	case "set_columns":
		msg = &SetColumns{}
	case "pointer_down":
		msg = &PointerDown{}
	case "pointer_move":
		msg = &PointerMove{}
	case "pointer_up":
		msg = &PointerUp{}
	case "click":
		msg = &Click{}
	case "escape":
		return Escape{}, nil
	case "quick_add_submit":
		msg = &QuickAddSubmit{}
	case "quick_add_cancel":
		return QuickAddCancel{}, nil
	case "update_event":
		msg = &UpdateEvent{}
	case "delete_occurrence":
		msg = &DeleteOccurrence{}
	case "close_detail":
		return CloseDetail{}, nil
	case "dismiss_notice":
		return DismissNotice{}, nil
	case "refresh":
		return Refresh{}, nil
	default:
		return nil, fmt.Errorf("decode input: unknown type %q", env.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		appLog.Debug("calendar: bad input payload", "type", env.Type, "err", err)
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return deref(msg), nil
}

func deref(msg Msg) Msg {
	switch m := msg.(type) {
	case *SetView:
		return *m
	case *SetColumns:
		return *m
	case *PointerDown:
		return *m
	case *PointerMove:
		return *m
	case *PointerUp:
		return *m
	case *Click:
		return *m
	case *QuickAddSubmit:
		return *m
	case *UpdateEvent:
		return *m
	case *DeleteOccurrence:
		return *m
	}
	return msg
}
