package execx

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Call records one invocation made through a Fake.
type Call struct {
	Name string
	Args []string
}

// Line renders the call as "name arg1 arg2".
func (c Call) Line() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// HandlerFunc produces the output of a faked command.
type HandlerFunc func(args []string) ([]byte, error)

// Fake is an in-memory Runner for tests. Unregistered commands fail.
type Fake struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	calls    []Call
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{handlers: make(map[string]HandlerFunc)}
}

// Handle registers the behaviour of a command name.
func (f *Fake) Handle(name string, h HandlerFunc) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[name] = h
	return f
}

// Output registers a command that always succeeds with out.
func (f *Fake) Output(name, out string) *Fake {
	return f.Handle(name, func([]string) ([]byte, error) { return []byte(out), nil })
}

// Fail registers a command that always fails with err.
func (f *Fake) Fail(name string, err error) *Fake {
	return f.Handle(name, func([]string) ([]byte, error) { return nil, err })
}

// Run implements Runner.
func (f *Fake) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Name: name, Args: append([]string(nil), args...)})
	h, ok := f.handlers[name]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: executable file not found", name)
	}
	return h(args)
}

// Calls returns a copy of the recorded invocations.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the invocations of one command name.
func (f *Fake) CallsTo(name string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
