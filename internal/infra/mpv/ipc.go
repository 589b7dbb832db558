// Package mpv drives an external mpv process over its JSON IPC socket.
package mpv

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const socketWaitDelay = 100 * time.Millisecond

var (
	errIPCClosed           = errors.New("mpv ipc connection closed")
	errPropertyUnavailable = errors.New("mpv property unavailable")
)

type ipcRequest struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

// ipcMessage is either a reply (RequestID set) or an event (Event set).
type ipcMessage struct {
	RequestID *int64          `json:"request_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Event     string          `json:"event,omitempty"`
	Name      string          `json:"name,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// ipcConn multiplexes request/reply pairs and asynchronous events over one connection.
type ipcConn struct {
	conn    net.Conn
	timeout time.Duration
	events  func(ipcMessage)

	writeMu   sync.Mutex
	pendingMu sync.Mutex
	pending   map[int64]chan ipcMessage
	nextID    atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
}

func newIPCConn(conn net.Conn, timeout time.Duration, events func(ipcMessage)) *ipcConn {
	c := &ipcConn{
		conn:    conn,
		timeout: timeout,
		events:  events,
		pending: make(map[int64]chan ipcMessage),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// waitForSocket polls until mpv accepts connections on path.
func waitForSocket(ctx context.Context, path string, exited <-chan struct{}, timeout time.Duration) (net.Conn, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		conn, err := net.DialTimeout("unix", path, socketWaitDelay)
		if err == nil {
			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-exited:
			return nil, errors.New("mpv exited before the ipc socket was ready")
		case <-deadline.C:
			return nil, errors.Wrapf(err, "mpv ipc socket not ready after %s", timeout)
		case <-time.After(socketWaitDelay):
		}
	}
}

// command sends one command and waits for its reply.
func (c *ipcConn) command(args ...any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan ipcMessage, 1)

	c.pendingMu.Lock()
	select {
	case <-c.done:
		c.pendingMu.Unlock()
		return nil, errIPCClosed
	default:
	}
	c.pending[id] = ch
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	payload, err := json.Marshal(ipcRequest{Command: args, RequestID: id})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode mpv command")
	}

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	_, err = c.conn.Write(append(payload, '\n'))
	c.writeMu.Unlock()
	if err != nil {
		return nil, errors.Wrapf(err, "mpv %v: write failed", args[0])
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		switch msg.Error {
		case "", "success":
			return msg.Data, nil
		case "property unavailable":
			return nil, errors.Wrapf(errPropertyUnavailable, "mpv %v", args)
		default:
			return nil, errors.Newf("mpv %v: %s", args, msg.Error)
		}
	case <-c.done:
		return nil, errIPCClosed
	case <-timer.C:
		return nil, errors.Newf("mpv %v: no reply after %s", args[0], c.timeout)
	}
}

func (c *ipcConn) getProperty(name string) (json.RawMessage, error) {
	return c.command("get_property", name)
}

func (c *ipcConn) setProperty(name string, value any) error {
	_, err := c.command("set_property", name, value)
	return err
}

func (c *ipcConn) getFloat(name string) (float64, error) {
	data, err := c.getProperty(name)
	if err != nil {
		return 0, err
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, errors.Wrapf(err, "mpv %s: unexpected value %s", name, string(data))
	}
	return v, nil
}

func (c *ipcConn) getInt(name string) (int, error) {
	v, err := c.getFloat(name)
	return int(v), err
}

func (c *ipcConn) observe(id int, name string) error {
	_, err := c.command("observe_property", id, name)
	return err
}

func (c *ipcConn) readLoop() {
	defer c.close()

	dec := json.NewDecoder(c.conn)
	for {
		var msg ipcMessage
		if err := dec.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				zlog.Debug().Msgf("mpv: ipc read stopped: %v", err)
			}
			return
		}

		if msg.Event != "" {
			if c.events != nil {
				c.events(msg)
			}
			continue
		}
		if msg.RequestID == nil {
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[*msg.RequestID]
		c.pendingMu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

// Done is closed once the connection is gone.
func (c *ipcConn) Done() <-chan struct{} {
	return c.done
}

func (c *ipcConn) close() {
	c.closeOnce.Do(func() {
		c.pendingMu.Lock()
		close(c.done)
		c.pendingMu.Unlock()
		c.conn.Close()
	})
}
