package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/skyward-cloud/nodeboot/internal/platform/cloud"
	sshx "github.com/skyward-cloud/nodeboot/internal/platform/ssh"
)

// fakeSession scripts remote command execution. The optional handler is
// consulted first; unhandled commands get defaults that make a node look
// healthy (monotonic uptime, reachable, no install locks, all commands
// succeeding).
type fakeSession struct {
	mu       sync.Mutex
	uptime   float64
	handler  func(cmd string) (sshx.RunResult, error, bool)
	commands []string
	closed   bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{uptime: 100}
}

func (s *fakeSession) Run(_ context.Context, cmd string, _ time.Duration) (sshx.RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cmd)

	if s.handler != nil {
		if res, err, handled := s.handler(cmd); handled {
			return res, err
		}
	}

	switch {
	case strings.HasPrefix(cmd, "cat /proc/uptime"):
		s.uptime++
		return sshx.RunResult{Stdout: fmt.Sprintf("%.2f 0.00", s.uptime)}, nil
	case strings.HasPrefix(cmd, "fuser "):
		// No lock holder found.
		return sshx.RunResult{ExitCode: 1}, nil
	default:
		return sshx.RunResult{}, nil
	}
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// count returns how many recorded commands contain substr.
func (s *fakeSession) count(substr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.commands {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

func (s *fakeSession) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// fakeDialer hands out one session per address.
type fakeDialer struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	build    func(addr string) *fakeSession
	dialErr  error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{sessions: make(map[string]*fakeSession)}
}

func (d *fakeDialer) Dial(_ context.Context, addr string) (sshx.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	if s, ok := d.sessions[addr]; ok && !s.closed {
		return s, nil
	}
	var s *fakeSession
	if d.build != nil {
		s = d.build(addr)
	} else {
		s = newFakeSession()
	}
	d.sessions[addr] = s
	return s, nil
}

func (d *fakeDialer) session(addr string) *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[addr]
}

// fakeAPI is an in-memory instance provider keyed by request token.
type fakeAPI struct {
	mu            sync.Mutex
	instances     map[string]*cloud.Instance
	describeCalls map[string]int
	terminated    []string
	stopped       []string
	// describeFn overrides Describe per token; call is 1-based.
	describeFn map[string]func(call int) (*cloud.Instance, error)
	nextAddr   int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		instances:     make(map[string]*cloud.Instance),
		describeCalls: make(map[string]int),
		describeFn:    make(map[string]func(int) (*cloud.Instance, error)),
	}
}

func (a *fakeAPI) Create(_ context.Context, spec cloud.CreateSpec) (*cloud.Instance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if inst, ok := a.instances[spec.Token]; ok {
		return inst, nil
	}
	a.nextAddr++
	inst := &cloud.Instance{
		ID:      fmt.Sprintf("i-%d", a.nextAddr),
		Name:    spec.Name,
		Address: fmt.Sprintf("10.0.0.%d", a.nextAddr),
		Status:  cloud.StatusRunning,
	}
	a.instances[spec.Token] = inst
	return inst, nil
}

func (a *fakeAPI) Describe(_ context.Context, token string) (*cloud.Instance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.describeCalls[token]++
	if fn, ok := a.describeFn[token]; ok {
		return fn(a.describeCalls[token])
	}
	inst, ok := a.instances[token]
	if !ok {
		return nil, cloud.ErrNotFound
	}
	return inst, nil
}

func (a *fakeAPI) Stop(_ context.Context, token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = append(a.stopped, token)
	if inst, ok := a.instances[token]; ok {
		inst.Status = cloud.StatusOff
	}
	return nil
}

func (a *fakeAPI) Terminate(_ context.Context, token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.terminated = append(a.terminated, token)
	delete(a.instances, token)
	return nil
}

// recordObserver captures events for assertions.
type recordObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *recordObserver) Event(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordObserver) Printf(string, ...interface{}) {}

func (o *recordObserver) ofType(t EventType) []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Event
	for _, e := range o.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
