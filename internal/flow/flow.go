// Package flow implements the popup authorization flow as an explicit state
// machine. Three independent event sources race to produce the first terminal
// transition: the callback message delivered by the redirect handler, a
// fixed-interval poll of the popup handle's closed flag, and a one-shot hard
// timeout. Whichever fires first is authoritative; the other two are torn
// down exactly once and can no longer affect the outcome.
package flow

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
)

type State string

const (
	StateIdle      State = "idle"
	StatePopupOpen State = "popup_opened"
	StateWaiting   State = "waiting_for_message"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
	StateTimedOut  State = "timed_out"
)

func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled, StateTimedOut:
		return true
	default:
		return false
	}
}

type EventKind string

const (
	EventSuccess   EventKind = "success"
	EventError     EventKind = "error"
	EventCancelled EventKind = "cancelled"
	EventTimedOut  EventKind = "timed_out"
)

// Event is the tagged union consumed by the flow's single reducer.
type Event struct {
	Kind EventKind
	Code string // authorization code, Success only
	Err  error  // provider/transport error, Error only
}

// Handle is the popup window as observed by the controller. In production it
// is backed by the attempt record (the opener UI reports closure); in tests
// it is a fake.
type Handle interface {
	Closed() bool
	Close()
}

// Opener opens the popup for an authorization URL. A nil handle means the
// environment blocked the popup.
type Opener interface {
	Open(url string) (Handle, error)
}

// Controller carries the flow tuning shared by all attempts.
type Controller struct {
	timeout time.Duration
	poll    time.Duration
	lg      zerolog.Logger
}

func NewController(timeout, poll time.Duration, lg zerolog.Logger) *Controller {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &Controller{
		timeout: timeout,
		poll:    poll,
		lg:      lg.With().Str("component", "popup_flow").Logger(),
	}
}

// Flow is one in-flight authorization attempt.
type Flow struct {
	handle Handle
	lg     zerolog.Logger

	mu    sync.Mutex
	state State

	once sync.Once
	quit chan struct{} // stops poller and timer
	done chan struct{} // closed after the terminal transition

	code string
	err  error
}

// Start opens the popup and begins waiting for a terminal event.
func (c *Controller) Start(opener Opener, authURL string) (*Flow, error) {
	handle, err := opener.Open(authURL)
	if err != nil {
		return nil, domain.ErrPopupBlocked()
	}
	if handle == nil {
		return nil, domain.ErrPopupBlocked()
	}

	f := &Flow{
		handle: handle,
		lg:     c.lg,
		state:  StateWaiting, // PopupOpened -> WaitingForMessage is immediate
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	go f.pollClosed(c.poll)
	go f.armTimeout(c.timeout)

	return f, nil
}

// Deliver feeds an event into the reducer. Events after the terminal
// transition are dropped, as are malformed success events (empty code), so a
// late or bogus message can never double-resolve the attempt.
func (f *Flow) Deliver(ev Event) {
	if ev.Kind == EventSuccess && ev.Code == "" {
		f.lg.Warn().Msg("ignoring success event without authorization code")
		return
	}
	f.terminate(ev)
}

// Await blocks until the flow reaches a terminal state and returns the
// authorization code, or the terminal error.
func (f *Flow) Await(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.code, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// State returns the current state for observability endpoints.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// pollClosed watches the popup's closed flag. A manual close before any
// terminal message is a user cancellation.
func (f *Flow) pollClosed(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-f.quit:
			return
		case <-t.C:
			if f.handle.Closed() {
				f.terminate(Event{Kind: EventCancelled})
				return
			}
		}
	}
}

// armTimeout enforces the hard wall-clock limit regardless of popup state.
func (f *Flow) armTimeout(after time.Duration) {
	t := time.NewTimer(after)
	defer t.Stop()
	select {
	case <-f.quit:
	case <-t.C:
		f.terminate(Event{Kind: EventTimedOut})
	}
}

// terminate is the single reducer: it maps the first terminal event onto the
// final state and result, and tears down the other sources exactly once.
func (f *Flow) terminate(ev Event) {
	f.once.Do(func() {
		f.mu.Lock()
		switch ev.Kind {
		case EventSuccess:
			f.state = StateSucceeded
			f.code = ev.Code
		case EventError:
			f.state = StateFailed
			f.err = ev.Err
			if f.err == nil {
				f.err = domain.ErrAuthFailed(nil)
			}
		case EventCancelled:
			f.state = StateCancelled
			f.err = domain.ErrAuthCancelled()
		case EventTimedOut:
			f.state = StateTimedOut
			f.err = domain.ErrAuthTimeout()
		}
		state := f.state
		f.mu.Unlock()

		close(f.quit)

		// The popup is force-closed on timeout; on the other transitions the
		// popup either closed itself or the user closed it.
		if state == StateTimedOut {
			f.handle.Close()
		}

		f.lg.Debug().Str("state", string(state)).Msg("flow terminal transition")
		close(f.done)
	})
}
