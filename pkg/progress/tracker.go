package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/dieharders/obrew-go/pkg/sse"
	"github.com/dieharders/obrew-go/pkg/track"
)

// StreamOpener opens the long-lived progress stream for a download task.
// Implemented by the client transport layer; an open failure is the hard,
// synchronous failure path of Subscribe.
type StreamOpener interface {
	OpenProgressStream(ctx context.Context, taskID string) (io.ReadCloser, error)
}

// Callbacks receive the lifecycle of one progress subscription. Exactly one
// of OnComplete, OnError, OnCancel fires per subscription; after that no
// further callbacks occur even if more frames arrive before the source
// closes. A caller-initiated abort always resolves to OnCancel, never
// OnError.
type Callbacks struct {
	OnProgress func(Record)
	OnComplete func(filePath string)
	OnError    func(message string)
	OnCancel   func()
}

// StreamErrorObserver is implemented by stream openers that also track
// connection health. When the opener implements it, transport-level decode
// failures are reported to it before the terminal callback fires, so a dead
// backend disables the owning client even when the failure surfaces inside a
// long-lived progress stream.
type StreamErrorObserver interface {
	NoteTransportError(err error)
}

// Subscription is the cancellable handle for one progress stream.
type Subscription struct {
	id       string
	taskID   string
	requests *track.Tracker
	done     chan struct{}
}

// ID returns the internal subscription id registered with the request
// tracker.
func (s *Subscription) ID() string { return s.id }

// TaskID returns the download task the subscription observes.
func (s *Subscription) TaskID() string { return s.taskID }

// Cancel aborts the subscription's stream. The decode loop observes the
// fired token at its next check point and resolves to OnCancel.
func (s *Subscription) Cancel() {
	s.requests.Cancel(s.id)
}

// Done is closed once the subscription has fully terminated and its
// terminal callback has fired.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Tracker subscribes to per-task download progress streams.
type Tracker struct {
	opener   StreamOpener
	requests *track.Tracker
	decoder  *sse.Decoder
	logger   *zap.Logger
}

// NewTracker returns a progress Tracker wired to the given stream opener and
// request tracker. A nil logger is replaced with a no-op logger.
func NewTracker(opener StreamOpener, requests *track.Tracker, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		opener:   opener,
		requests: requests,
		decoder:  sse.NewDecoder(logger),
		logger:   logger,
	}
}

// Subscribe opens the progress stream for taskID and consumes it in the
// background, invoking cb as frames arrive. Failure to open the stream is
// returned synchronously; everything after that surfaces through callbacks.
func (t *Tracker) Subscribe(ctx context.Context, taskID string, cb Callbacks) (*Subscription, error) {
	subID, subCtx := t.requests.Begin(ctx, "")

	body, err := t.opener.OpenProgressStream(subCtx, taskID)
	if err != nil {
		t.requests.End(subID)
		return nil, fmt.Errorf("opening progress stream for task %s: %w", taskID, err)
	}

	sub := &Subscription{
		id:       subID,
		taskID:   taskID,
		requests: t.requests,
		done:     make(chan struct{}),
	}

	t.logger.Debug("progress subscription opened",
		zap.String("task_id", taskID),
		zap.String("subscription_id", subID),
	)

	go t.consume(subCtx, sub, body, cb)

	return sub, nil
}

// consume runs the decode loop for one subscription. All callback dispatch
// happens on this goroutine, so terminal-state bookkeeping needs no lock.
func (t *Tracker) consume(ctx context.Context, sub *Subscription, body io.ReadCloser, cb Callbacks) {
	defer close(sub.done)
	defer t.requests.End(sub.id)

	fired := false
	fire := func(f func()) {
		if fired {
			return
		}
		fired = true
		if f != nil {
			f()
		}
	}

	err := t.decoder.Decode(ctx, body, sse.Callbacks{
		OnData: func(payload string) {
			if fired {
				return
			}

			var rec Record
			if err := json.Unmarshal([]byte(payload), &rec); err != nil {
				// Unparseable frames are noise, not progress.
				t.logger.Debug("skipping unparseable progress frame",
					zap.String("task_id", sub.taskID),
					zap.Error(err),
				)
				return
			}

			switch rec.Status {
			case StatusCompleted:
				filePath := rec.FilePath
				fire(func() {
					if cb.OnComplete != nil {
						cb.OnComplete(filePath)
					}
				})
				sub.Cancel()

			case StatusError:
				message := rec.Error
				if message == "" {
					message = "download failed"
				}
				fire(func() {
					if cb.OnError != nil {
						cb.OnError(message)
					}
				})
				sub.Cancel()

			case StatusCancelled:
				fire(func() {
					if cb.OnCancel != nil {
						cb.OnCancel()
					}
				})
				sub.Cancel()

			default:
				if cb.OnProgress != nil {
					cb.OnProgress(rec)
				}
			}
		},
	})

	switch {
	case err == nil:
		// Source closed without a terminal frame. The task's fate is
		// unknown, which subscribers must treat as a failure.
		fire(func() {
			if cb.OnError != nil {
				cb.OnError("progress stream ended before a terminal status")
			}
		})

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		fire(func() {
			if cb.OnCancel != nil {
				cb.OnCancel()
			}
		})

	default:
		if obs, ok := t.opener.(StreamErrorObserver); ok {
			obs.NoteTransportError(err)
		}
		message := err.Error()
		fire(func() {
			if cb.OnError != nil {
				cb.OnError(message)
			}
		})
	}

	t.logger.Debug("progress subscription closed",
		zap.String("task_id", sub.taskID),
		zap.String("subscription_id", sub.id),
	)
}
