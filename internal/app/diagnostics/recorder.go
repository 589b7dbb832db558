// Package diagnostics records lifecycle events and fans them out to watchers.
package diagnostics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/reelbox/internal/app/lifecycle"
	"github.com/osa030/reelbox/internal/domain/resume"
)

// DefaultHistorySize is the number of notifications kept when no size is configured.
const DefaultHistorySize = 100

// sendTimeout bounds how long a single slow watcher can hold up a broadcast.
const sendTimeout = 500 * time.Millisecond

// Notification is the watcher-facing form of a lifecycle event.
type Notification struct {
	SequenceNo    uint64        `json:"sequence_no"`
	Type          string        `json:"type"`
	SessionID     string        `json:"session_id,omitempty"`
	PlaybackState string        `json:"playback_state,omitempty"`
	Resume        *resume.State `json:"resume,omitempty"`
	Error         string        `json:"error,omitempty"`
	Time          time.Time     `json:"time"`
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

type subscription struct {
	id     string
	stream Stream
}

// Recorder keeps a bounded history of notifications and broadcasts new ones.
type Recorder struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription

	historyMu     sync.RWMutex
	history       []Notification
	historySize   int
	sequenceNo    uint64
	lastPlayback  string
	lastSessionID string
}

// NewRecorder creates a recorder keeping at most historySize notifications.
func NewRecorder(historySize int) *Recorder {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Recorder{
		subscriptions: make(map[string]*subscription),
		historySize:   historySize,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (r *Recorder) Subscribe(stream Stream) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New().String()
	r.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	zlog.Debug().Msgf("diagnostics: watcher subscribed: id=%s", id)
	return id
}

// Unsubscribe removes a subscription.
func (r *Recorder) Unsubscribe(subscriptionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscriptions, subscriptionID)
}

// SubscriberCount returns the number of active subscribers.
func (r *Recorder) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscriptions)
}

// Record stores n in the history, assigns its sequence number and broadcasts it.
func (r *Recorder) Record(n Notification) Notification {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	r.historyMu.Lock()
	r.sequenceNo++
	n.SequenceNo = r.sequenceNo
	r.history = append(r.history, n)
	if over := len(r.history) - r.historySize; over > 0 {
		r.history = append(r.history[:0:0], r.history[over:]...)
	}
	if n.PlaybackState != "" {
		r.lastPlayback = n.PlaybackState
		r.lastSessionID = n.SessionID
	}
	r.historyMu.Unlock()

	r.broadcast(&n)
	return n
}

// broadcast sends a notification to all subscribers.
// Each stream send is done in a goroutine with a timeout to prevent blocking.
func (r *Recorder) broadcast(n *Notification) {
	r.mu.RLock()
	subs := make([]*subscription, 0, len(r.subscriptions))
	for _, sub := range r.subscriptions {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(n)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("diagnostics: send failed: id=%s error=%v", s.id, err)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("diagnostics: send timed out: id=%s", s.id)
			}
		}(sub)
	}
	wg.Wait()
}

// History returns the recorded notifications, oldest first.
func (r *Recorder) History() []Notification {
	r.historyMu.RLock()
	defer r.historyMu.RUnlock()
	result := make([]Notification, len(r.history))
	copy(result, r.history)
	return result
}

// LastPlaybackState returns the most recent engine state and the session that reported it.
func (r *Recorder) LastPlaybackState() (state, sessionID string, ok bool) {
	r.historyMu.RLock()
	defer r.historyMu.RUnlock()
	return r.lastPlayback, r.lastSessionID, r.lastPlayback != ""
}

// Run records events until the channel closes or ctx is cancelled.
func (r *Recorder) Run(ctx context.Context, events <-chan lifecycle.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				zlog.Debug().Msg("diagnostics: event channel closed")
				return
			}
			r.Record(FromEvent(e))
		}
	}
}

// Close removes all subscriptions.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions = make(map[string]*subscription)
}

// FromEvent converts a lifecycle event.
func FromEvent(e lifecycle.Event) Notification {
	n := Notification{
		Type:      e.Type.String(),
		SessionID: e.SessionID,
		Time:      e.Time,
	}
	switch e.Type {
	case lifecycle.EventPlaybackStateChanged:
		n.PlaybackState = e.PlaybackState.String()
	case lifecycle.EventActivated, lifecycle.EventDeactivated, lifecycle.EventAcquisitionFailed:
		st := e.Resume
		n.Resume = &st
	}
	if e.Err != nil {
		n.Error = e.Err.Error()
	}
	return n
}
