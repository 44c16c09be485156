// Package mapping is the export surface of a mapping module: it owns the
// arena and the import dispatcher, and turns host calls into typed handler
// invocations.
package mapping

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
	"github.com/woxQAQ/subgraph-abi/pkg/codec"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
	"github.com/woxQAQ/subgraph-abi/pkg/host"
)

// Handler signatures.
type (
	EventHandler = func(*Context, *graph.Event) error
	CallHandler  = func(*Context, *graph.Call) error
	BlockHandler = func(*Context, *graph.Block) error
	// JSONCallback receives one value of an ipfs.map file and the userData
	// passed to ipfs.map.
	JSONCallback = func(ctx *Context, value graph.JSON, userData graph.Value) error
)

type mapArgs struct {
	value    graph.JSON
	userData graph.Value
}

type options struct {
	arena  []asc.ArenaOption
	logger *zap.Logger
}

// Option configures New.
type Option func(*options)

// WithVersion pins the ABI version.
func WithVersion(v asc.Version) Option {
	return func(o *options) { o.arena = append(o.arena, asc.WithVersion(v)) }
}

// WithArenaOptions passes options through to the arena.
func WithArenaOptions(opts ...asc.ArenaOption) Option {
	return func(o *options) { o.arena = append(o.arena, opts...) }
}

// WithLogger replaces the default logger, which writes through log.log.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Module is one instantiated mapping. It is single threaded: the host calls
// one export at a time.
type Module struct {
	arena  *asc.Arena
	host   *host.Dispatcher
	logger *zap.Logger

	events map[string]EventHandler
	calls  map[string]CallHandler
	blocks map[string]BlockHandler
	jsons  map[string]func(*Context, mapArgs) error

	startHooks []func(*Module) error
	started    bool
}

// New creates a module over mem that reaches the host through t.
func New(mem asc.Memory, t host.Transport, opts ...Option) (*Module, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a, err := asc.NewArena(mem, o.arena...)
	if err != nil {
		return nil, fmt.Errorf("create arena: %w", err)
	}
	d := host.NewDispatcher(a, t)
	logger := o.logger
	if logger == nil {
		logger = host.NewLogger(d)
	}
	return &Module{
		arena:  a,
		host:   d,
		logger: logger,
		events: make(map[string]EventHandler),
		calls:  make(map[string]CallHandler),
		blocks: make(map[string]BlockHandler),
		jsons:  make(map[string]func(*Context, mapArgs) error),
	}, nil
}

// Arena returns the module arena.
func (m *Module) Arena() *asc.Arena { return m.arena }

// Host returns the import dispatcher.
func (m *Module) Host() *host.Dispatcher { return m.host }

// Logger returns the module logger.
func (m *Module) Logger() *zap.Logger { return m.logger }

func register[H any](table map[string]H, kind, name string, h H) {
	if name == "" {
		panic("mapping: empty " + kind + " handler name")
	}
	if _, dup := table[name]; dup {
		panic("mapping: duplicate " + kind + " handler " + name)
	}
	table[name] = h
}

// HandleEvent registers an event handler under its export name. It panics if
// name is already registered.
func (m *Module) HandleEvent(name string, h EventHandler) { register(m.events, "event", name, h) }

// HandleCall registers a call handler.
func (m *Module) HandleCall(name string, h CallHandler) { register(m.calls, "call", name, h) }

// HandleBlock registers a block handler.
func (m *Module) HandleBlock(name string, h BlockHandler) { register(m.blocks, "block", name, h) }

// HandleJSON registers an ipfs.map callback. The host runs callbacks in a
// fresh instance of the module, so they must be registered from init code
// rather than from inside another handler.
func (m *Module) HandleJSON(name string, cb JSONCallback) {
	register(m.jsons, "ipfs.map", name, func(ctx *Context, a mapArgs) error {
		return cb(ctx, a.value, a.userData)
	})
}

// Handlers lists registered handler names by kind. ipfs.map callbacks are
// not listed.
func (m *Module) Handlers() (events, calls, blocks []string) {
	for n := range m.events {
		events = append(events, n)
	}
	for n := range m.calls {
		calls = append(calls, n)
	}
	for n := range m.blocks {
		blocks = append(blocks, n)
	}
	return
}

// OnStart adds a hook run by Start.
func (m *Module) OnStart(fn func(*Module) error) {
	m.startHooks = append(m.startHooks, fn)
}

// Start runs the start hooks once. It backs the _start export.
func (m *Module) Start() error {
	if m.started {
		return nil
	}
	m.started = true
	for _, fn := range m.startHooks {
		if err := fn(m); err != nil {
			return m.fail("_start", &HandlerError{Handler: "_start", Err: err})
		}
	}
	return nil
}

// Allocate reserves size raw bytes for the host to write an object into. It
// backs the allocate export.
func (m *Module) Allocate(size uint32) (uint32, error) {
	return m.arena.Reserve(size)
}

// IDOfType returns the runtime id the guest uses for a type index. It backs
// the id_of_type export.
func (m *Module) IDOfType(index uint32) (uint32, error) {
	idx := asc.TypeIndex(index)
	if !idx.Valid() {
		return 0, fmt.Errorf("unknown type index %d", index)
	}
	id, ok := m.arena.Registry().ID(idx)
	if !ok {
		return 0, fmt.Errorf("type %s has no runtime id", idx)
	}
	return id, nil
}

// InvokeEvent decodes the event at p and runs the handler called name. When
// the event holds malformed text or numbers the handler still runs, with a
// nil event, and Context.DecodeError tells it why. Returning that error
// aborts the call; returning nil skips the record.
func (m *Module) InvokeEvent(name string, p uint32) error {
	return invoke(m, name, m.events, p, codec.ReadEvent)
}

// InvokeCall decodes the call at p and runs the handler called name.
func (m *Module) InvokeCall(name string, p uint32) error {
	return invoke(m, name, m.calls, p, codec.ReadCall)
}

// InvokeBlock decodes the block at p and runs the handler called name.
func (m *Module) InvokeBlock(name string, p uint32) error {
	return invoke(m, name, m.blocks, p, codec.ReadBlock)
}

// InvokeJSON runs the ipfs.map callback name on the JSON value at value. A
// null userData pointer reads as graph.Null.
func (m *Module) InvokeJSON(name string, value, userData uint32) error {
	return invoke(m, name, m.jsons, value, func(a *asc.Arena, p asc.Ptr) (mapArgs, error) {
		v, err := codec.ReadJSON(a, p)
		if err != nil {
			return mapArgs{}, err
		}
		var u graph.Value = graph.Null{}
		if userData != 0 {
			if u, err = codec.ReadValue(a, asc.Ptr(userData)); err != nil {
				return mapArgs{}, err
			}
		}
		return mapArgs{value: v, userData: u}, nil
	})
}

func invoke[T any](m *Module, name string, table map[string]func(*Context, T) error, p uint32, read func(*asc.Arena, asc.Ptr) (T, error)) error {
	if err := m.Start(); err != nil {
		return err
	}
	h, ok := table[name]
	if !ok {
		return m.fail(name, &HandlerError{Handler: name, Err: fmt.Errorf("%s: %w", name, ErrNoHandler)})
	}
	arg, err := read(m.arena, asc.Ptr(p))
	if err != nil && !recoverable(err) {
		return m.fail(name, &HandlerError{Handler: name, Err: fmt.Errorf("decode argument: %w", err)})
	}

	ctx := &Context{m: m, handler: name, logger: m.logger.With(zap.String("handler", name))}
	if err != nil {
		// The handler runs with a nil argument and decides from DecodeError.
		ctx.decodeErr = fmt.Errorf("decode argument: %w", err)
	}
	defer func() { ctx.done = true }()
	if herr := run(name, func() error { return h(ctx, arg) }); herr != nil {
		return m.fail(name, herr)
	}
	return nil
}

// recoverable reports whether a decode failure is left to the handler.
// Malformed text or numbers are; bounds and tag violations are not.
func recoverable(err error) bool {
	return !asc.IsFatal(err) && errors.Is(err, asc.ErrEncoding)
}

// run calls fn, converting a returned error or a panic into a HandlerError.
func run(name string, fn func() error) (herr *HandlerError) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err, ok := r.(error)
		if !ok {
			err = &PanicError{Value: r}
		}
		file, line := panicSite()
		herr = &HandlerError{Handler: name, File: file, Line: line, Panic: true, Err: err}
	}()
	if err := fn(); err != nil {
		return &HandlerError{Handler: name, Err: err}
	}
	return nil
}

// panicSite finds the first frame below runtime.gopanic.
func panicSite() (string, uint32) {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	seen := false
	for {
		f, more := frames.Next()
		if seen && !strings.HasPrefix(f.Function, "runtime.") {
			return f.File, uint32(f.Line)
		}
		if f.Function == "runtime.gopanic" {
			seen = true
		}
		if !more {
			return "", 0
		}
	}
}

// fail reports herr to the host through env.abort and returns it.
func (m *Module) fail(name string, herr *HandlerError) error {
	var file *string
	if herr.File != "" {
		file = &herr.File
	}
	if err := m.host.Abort(herr.Error(), file, herr.Line, 0); err != nil {
		return errors.Join(herr, fmt.Errorf("%s: report abort: %w", name, err))
	}
	return herr
}
