package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/reelbox/internal/app/diagnostics"
)

// Client calls a remote LifecycleService.
type Client struct {
	token  string
	signal *connect.Client[SignalRequest, SignalResponse]
	status *connect.Client[StatusRequest, StatusResponse]
	watch  *connect.Client[WatchRequest, diagnostics.Notification]
}

// NewClient creates a client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &Client{
		token:  token,
		signal: connect.NewClient[SignalRequest, SignalResponse](httpClient, baseURL+SignalProcedure, opts...),
		status: connect.NewClient[StatusRequest, StatusResponse](httpClient, baseURL+StatusProcedure, opts...),
		watch:  connect.NewClient[WatchRequest, diagnostics.Notification](httpClient, baseURL+WatchProcedure, opts...),
	}
}

// Signal dispatches a lifecycle signal by name.
func (c *Client) Signal(ctx context.Context, name string) (*SignalResponse, error) {
	req := connect.NewRequest(&SignalRequest{Signal: name})
	req.Header().Set(ControlTokenHeader, c.token)
	resp, err := c.signal.CallUnary(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Status fetches the controller status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	resp, err := c.status.CallUnary(ctx, connect.NewRequest(&StatusRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Watch calls fn for every notification until ctx is cancelled, the server
// ends the stream or fn returns an error.
func (c *Client) Watch(ctx context.Context, history bool, fn func(*diagnostics.Notification) error) error {
	stream, err := c.watch.CallServerStream(ctx, connect.NewRequest(&WatchRequest{History: history}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		if err := fn(stream.Msg()); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "watch stream failed")
	}
	return nil
}
