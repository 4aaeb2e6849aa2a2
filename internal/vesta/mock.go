package vesta

import (
	"context"
	"sync"
)

// RecordedCall is one command seen by MockCaller.
type RecordedCall struct {
	Command string
	Args    []string
}

// MockCaller is a scripted in-memory Caller for testing.
// Unscripted commands answer "OK", except v-list-user which answers "".
type MockCaller struct {
	// CallFunc, when set, handles every call.
	CallFunc func(ctx context.Context, command string, args []string) (*Response, error)

	mu     sync.Mutex
	bodies map[string][]string
	errs   map[string]error
	calls  []RecordedCall
}

func NewMockCaller() *MockCaller {
	return &MockCaller{
		bodies: make(map[string][]string),
		errs:   make(map[string]error),
	}
}

// Respond queues bodies for command. The last body repeats once the queue drains.
func (m *MockCaller) Respond(command string, bodies ...string) *MockCaller {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies[command] = append(m.bodies[command], bodies...)
	return m
}

// Fail makes command return err as a transport failure.
func (m *MockCaller) Fail(command string, err error) *MockCaller {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[command] = err
	return m
}

func (m *MockCaller) Call(ctx context.Context, command string, args ...string) (*Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, RecordedCall{Command: command, Args: append([]string(nil), args...)})
	fn := m.CallFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, command, args)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errs[command]; ok {
		return nil, &TransportError{Command: command, Err: err}
	}
	body := okBody
	if command == CmdListUser {
		body = ""
	}
	if queue := m.bodies[command]; len(queue) > 0 {
		body = queue[0]
		if len(queue) > 1 {
			m.bodies[command] = queue[1:]
		}
	}
	return newResponse(command, body), nil
}

// Calls returns every recorded call in order.
func (m *MockCaller) Calls() []RecordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Commands returns the recorded command names in order.
func (m *MockCaller) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c.Command)
	}
	return out
}

// NewResponse builds a Response exactly as Client would for body.
func NewResponse(command, body string) *Response {
	return newResponse(command, body)
}
