package connect

import (
	"context"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/reelbox/internal/app/diagnostics"
	"github.com/osa030/reelbox/internal/app/lifecycle"
	"github.com/osa030/reelbox/internal/app/player"
)

// Controller is the part of the lifecycle controller the service drives.
type Controller interface {
	HandleSignal(ctx context.Context, sig lifecycle.Signal) error
	Status() lifecycle.Status
}

// LifecycleService implements the lifecycle RPCs.
type LifecycleService struct {
	controller Controller
	recorder   *diagnostics.Recorder
	policy     lifecycle.Policy
	done       <-chan struct{}
}

// NewLifecycleService creates a new LifecycleService. Watch streams end
// when done is closed.
func NewLifecycleService(controller Controller, recorder *diagnostics.Recorder, policy lifecycle.Policy, done <-chan struct{}) *LifecycleService {
	return &LifecycleService{
		controller: controller,
		recorder:   recorder,
		policy:     policy,
		done:       done,
	}
}

// NewHandler returns the path and handler serving s. Signal requires token.
func NewHandler(s *LifecycleService, token string, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	signalOpts := append(append([]connect.HandlerOption{}, opts...),
		connect.WithInterceptors(NewControlAuthInterceptor(token)))

	mux := http.NewServeMux()
	mux.Handle(SignalProcedure, connect.NewUnaryHandler(SignalProcedure, s.Signal, signalOpts...))
	mux.Handle(StatusProcedure, connect.NewUnaryHandler(StatusProcedure, s.Status, opts...))
	mux.Handle(WatchProcedure, connect.NewServerStreamHandler(WatchProcedure, s.Watch, opts...))

	return "/" + LifecycleServiceName + "/", mux
}

// Signal dispatches a host lifecycle signal.
func (s *LifecycleService) Signal(
	ctx context.Context,
	req *connect.Request[SignalRequest],
) (*connect.Response[SignalResponse], error) {
	sig, err := lifecycle.ParseSignal(req.Msg.Signal)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	zlog.Info().Msgf("api: signal requested: signal=%s peer=%s", sig, req.Peer().Addr)

	if err := s.controller.HandleSignal(ctx, sig); err != nil {
		if errors.Is(err, player.ErrAcquisition) {
			return nil, connect.NewError(connect.CodeUnavailable, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(&SignalResponse{
		Signal: sig.String(),
		Status: s.status(),
	}), nil
}

// Status returns the controller status.
func (s *LifecycleService) Status(
	ctx context.Context,
	req *connect.Request[StatusRequest],
) (*connect.Response[StatusResponse], error) {
	status := s.status()
	return connect.NewResponse(&status), nil
}

// Watch streams lifecycle notifications, starting with the current state.
// Live notifications are held back until the replay is written so none
// recorded in between is lost.
func (s *LifecycleService) Watch(
	ctx context.Context,
	req *connect.Request[WatchRequest],
	stream *connect.ServerStream[diagnostics.Notification],
) error {
	adapter := newNotificationStreamAdapter(stream)
	defer adapter.close()

	subscriptionID := s.recorder.Subscribe(adapter)
	defer s.recorder.Unsubscribe(subscriptionID)

	var history []diagnostics.Notification
	if req.Msg.History {
		history = s.recorder.History()
	}

	status := s.controller.Status()
	st := status.Resume
	initial := &diagnostics.Notification{
		Type:      "initial_state",
		SessionID: status.SessionID,
		Resume:    &st,
		Time:      time.Now(),
	}
	if state, sessionID, ok := s.recorder.LastPlaybackState(); ok && sessionID == status.SessionID {
		initial.PlaybackState = state
	}

	if err := adapter.start(history, initial); err != nil {
		return err
	}

	// Wait for context cancellation or shutdown
	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return nil
}

func (s *LifecycleService) status() StatusResponse {
	status := s.controller.Status()
	resp := StatusResponse{
		State:           status.State.String(),
		SessionID:       status.SessionID,
		Resume:          status.Resume,
		MediaURI:        status.Source.URI,
		MimeType:        status.Source.MimeType.String(),
		Policy:          s.policy.Mode.String(),
		PlatformVersion: s.policy.PlatformVersion,
		Threshold:       s.policy.Threshold,
	}
	if state, sessionID, ok := s.recorder.LastPlaybackState(); ok && sessionID == status.SessionID {
		resp.LastPlaybackState = state
	}
	return resp
}

// notificationSender is the sending half of a server stream.
type notificationSender interface {
	Send(*diagnostics.Notification) error
}

var errWatchEnded = errors.New("watch stream ended")

// notificationStreamAdapter adapts connect.ServerStream to diagnostics.Stream.
// Sends are serialised; a timed-out broadcast may still be writing.
type notificationStreamAdapter struct {
	mu      sync.Mutex
	stream  notificationSender
	live    bool
	closed  bool
	pending []diagnostics.Notification
}

func newNotificationStreamAdapter(stream notificationSender) *notificationStreamAdapter {
	return &notificationStreamAdapter{stream: stream}
}

// Send implements diagnostics.Stream. Notifications arriving before start
// are buffered.
func (a *notificationStreamAdapter) Send(n *diagnostics.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errWatchEnded
	}
	if !a.live {
		a.pending = append(a.pending, *n)
		return nil
	}
	return a.stream.Send(n)
}

// start writes the replayed history and the initial state, then the
// buffered notifications not already part of the history.
func (a *notificationStreamAdapter) start(history []diagnostics.Notification, initial *diagnostics.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errWatchEnded
	}

	var lastSeq uint64
	for i := range history {
		if err := a.stream.Send(&history[i]); err != nil {
			return err
		}
		lastSeq = history[i].SequenceNo
	}
	if err := a.stream.Send(initial); err != nil {
		return err
	}
	for i := range a.pending {
		if a.pending[i].SequenceNo <= lastSeq {
			continue
		}
		if err := a.stream.Send(&a.pending[i]); err != nil {
			return err
		}
	}
	a.pending = nil
	a.live = true
	return nil
}

// close refuses every later send.
func (a *notificationStreamAdapter) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.pending = nil
}
