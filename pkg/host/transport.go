package host

import (
	"errors"
	"fmt"
	"sync"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
)

// Transport carries one import call across the boundary. Arguments and the
// result are raw WebAssembly values; handles travel as their offsets.
type Transport interface {
	Invoke(imp Import, args ...uint64) (uint64, error)
}

// Binder is implemented by transports that need the arena of the module
// they serve, such as Mock.
type Binder interface {
	Bind(a *asc.Arena)
}

// ErrNotImplemented is returned by Mock for imports without a handler.
var ErrNotImplemented = errors.New("host import not implemented")

// MockFunc answers one import call against the module arena.
type MockFunc func(a *asc.Arena, args []uint64) (uint64, error)

// MockCall records one call seen by a Mock.
type MockCall struct {
	Import Import
	Args   []uint64
}

// Mock is an in-process Transport. Handlers decode their arguments and
// encode their results through the same codec the guest uses.
type Mock struct {
	mu       sync.Mutex
	arena    *asc.Arena
	handlers map[Import]MockFunc
	calls    []MockCall
}

// NewMock returns a Mock with no handlers.
func NewMock() *Mock {
	return &Mock{handlers: make(map[Import]MockFunc)}
}

// Bind attaches the arena handlers receive.
func (m *Mock) Bind(a *asc.Arena) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.arena = a
}

// Handle installs fn for imp, replacing any earlier handler.
func (m *Mock) Handle(imp Import, fn MockFunc) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[imp] = fn
	return m
}

// Invoke runs the handler for imp.
func (m *Mock) Invoke(imp Import, args ...uint64) (uint64, error) {
	m.mu.Lock()
	fn, ok := m.handlers[imp]
	a := m.arena
	m.calls = append(m.calls, MockCall{Import: imp, Args: append([]uint64(nil), args...)})
	m.mu.Unlock()

	if !ok {
		return 0, fmt.Errorf("%s: %w", imp.Descriptor().QualifiedName(), ErrNotImplemented)
	}
	if a == nil {
		return 0, errors.New("mock transport is not bound to an arena")
	}
	return fn(a, args)
}

// Calls returns the calls seen so far.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns how many times imp was invoked.
func (m *Mock) CallCount(imp Import) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Import == imp {
			n++
		}
	}
	return n
}
