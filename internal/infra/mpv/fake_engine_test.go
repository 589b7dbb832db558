package mpv

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"testing"
)

// fakeEngine answers mpv IPC commands on one end of an in-memory pipe.
type fakeEngine struct {
	conn net.Conn

	mu       sync.Mutex
	commands [][]any
	props    map[string]any
	failures map[string]string // Command name -> error string

	writeMu sync.Mutex
}

func newFakeEngine(t *testing.T) (*fakeEngine, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	e := &fakeEngine{
		conn:     server,
		props:    make(map[string]any),
		failures: make(map[string]string),
	}
	go e.serve()
	t.Cleanup(func() { server.Close() })
	return e, client
}

func (e *fakeEngine) serve() {
	scanner := bufio.NewScanner(e.conn)
	for scanner.Scan() {
		var req struct {
			Command   []any `json:"command"`
			RequestID int64 `json:"request_id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		e.write(e.handle(req.Command, req.RequestID))
	}
}

func (e *fakeEngine) handle(cmd []any, id int64) map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.commands = append(e.commands, cmd)
	reply := map[string]any{"request_id": id, "error": "success"}

	name, _ := cmd[0].(string)
	if msg, ok := e.failures[name]; ok {
		reply["error"] = msg
		return reply
	}

	switch name {
	case "get_property":
		v, ok := e.props[cmd[1].(string)]
		if !ok {
			reply["error"] = "property unavailable"
			return reply
		}
		reply["data"] = v
	case "set_property":
		e.props[cmd[1].(string)] = cmd[2]
	}
	return reply
}

func (e *fakeEngine) write(msg map[string]any) {
	data, _ := json.Marshal(msg)
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_, _ = e.conn.Write(append(data, '\n'))
}

// Push sends an unsolicited event.
func (e *fakeEngine) Push(event map[string]any) {
	e.write(event)
}

func (e *fakeEngine) PushProperty(name string, value any) {
	e.Push(map[string]any{"event": "property-change", "name": name, "data": value})
}

func (e *fakeEngine) Set(name string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.props[name] = value
}

func (e *fakeEngine) Get(name string) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.props[name]
}

func (e *fakeEngine) Fail(command, msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[command] = msg
}

// Commands returns the recorded commands, dropping observe_property noise.
func (e *fakeEngine) Commands() [][]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	var result [][]any
	for _, c := range e.commands {
		if c[0] == "observe_property" {
			continue
		}
		result = append(result, c)
	}
	return result
}

func (e *fakeEngine) CommandNames() []string {
	var names []string
	for _, c := range e.Commands() {
		name, _ := c[0].(string)
		if name == "set_property" || name == "get_property" {
			name += " " + c[1].(string)
		}
		names = append(names, name)
	}
	return names
}
