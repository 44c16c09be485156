// Package runner feeds recorded chain fixtures through the mappings of a
// subgraph and reports how each handler invocation ended.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/woxQAQ/subgraph-abi/internal/config"
	"github.com/woxQAQ/subgraph-abi/internal/ipfs"
	"github.com/woxQAQ/subgraph-abi/internal/store"
	"github.com/woxQAQ/subgraph-abi/internal/subgraph"
	"github.com/woxQAQ/subgraph-abi/internal/wasm"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
)

// Outcome is how a handler invocation ended.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeAborted
	OutcomeTimedOut
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeAborted:
		return "aborted"
	case OutcomeTimedOut:
		return "timeout"
	case OutcomeFailed:
		return "error"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Trigger kinds.
const (
	TriggerEvent = "event"
	TriggerCall  = "call"
	TriggerBlock = "block"
)

// Result records one handler invocation.
type Result struct {
	Block      uint64
	DataSource string
	Handler    string
	Trigger    string
	Outcome    Outcome
	Err        error
	Duration   time.Duration
}

// Report is the outcome of a fixture run.
type Report struct {
	Subgraph string
	Blocks   int
	Results  []Result
	// Created lists the data sources created from templates, in order.
	Created []wasm.CreatedDataSource
}

// Failed returns the number of invocations that did not end OK.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome != OutcomeOK {
			n++
		}
	}
	return n
}

// Runner owns the Wasm runtime, the entity store and the IPFS client used to
// run subgraphs.
type Runner struct {
	cfg     *config.RunnerConfig
	logger  *zap.Logger
	runtime *wasm.Runtime
	manager *subgraph.Manager
	store   store.Store
	ipfs    ipfs.Client
}

// New builds a runner from configuration.
func New(ctx context.Context, cfg *config.RunnerConfig, logger *zap.Logger) (*Runner, error) {
	wasmConfig := &wasm.RuntimeConfig{
		MemoryPages:      cfg.Wasm.MemoryPages,
		DebugEnabled:     cfg.Wasm.Debug,
		CacheDir:         cfg.Wasm.CacheDir,
		MaxInstances:     cfg.Wasm.MaxInstances,
		ExecutionTimeout: cfg.Wasm.ExecutionTimeout,
		ArenaChunkSize:   cfg.Wasm.ArenaChunkSize,
	}

	runtime, err := wasm.NewRuntime(ctx, logger, wasmConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}

	st, err := openStore(cfg.Store)
	if err != nil {
		runtime.Close(ctx)
		return nil, err
	}

	hostFuncs := wasm.NewHostFunctions(logger)

	logger.Info("Runner initialized",
		zap.Uint32("wasm_memory_pages", cfg.Wasm.MemoryPages),
		zap.String("wasm_cache_dir", cfg.Wasm.CacheDir),
		zap.String("store", cfg.Store.Backend),
		zap.String("ipfs_gateway", cfg.IPFS.Gateway),
	)

	return &Runner{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "runner")),
		runtime: runtime,
		manager: subgraph.NewManager(cfg, runtime, hostFuncs, logger),
		store:   st,
		ipfs:    ipfs.NewGateway(cfg.IPFS.Gateway, cfg.IPFS.Timeout, logger),
	}, nil
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.StoreSQLite:
		sqliteConfig := store.DefaultSQLiteConfig("")
		sqliteConfig.Path = cfg.Path
		st, err := store.OpenSQLite(sqliteConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to open entity store: %w", err)
		}
		return st, nil
	case config.StoreMemory, "":
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// Manager returns the subgraph manager.
func (r *Runner) Manager() *subgraph.Manager { return r.manager }

// Store returns the entity store mappings write to.
func (r *Runner) Store() store.Store { return r.store }

// Load loads and registers the subgraph in dir.
func (r *Runner) Load(ctx context.Context, dir string) (*subgraph.Subgraph, error) {
	return r.manager.Load(ctx, dir)
}

// Close shuts down the runtime and closes the store.
func (r *Runner) Close(ctx context.Context) error {
	err := r.manager.Shutdown(ctx)
	if cerr := r.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// source is a data source taking part in a run.
type source struct {
	ds      *subgraph.DataSource
	created *wasm.CreatedDataSource
	address graph.Address
	hasAddr bool
	start   uint64
	inst    *wasm.Instance
	// seen counts the created data sources of inst already collected.
	seen  int
	stash []wasm.CreatedDataSource
}

func (s *source) accepts(number uint64, addr graph.Address) bool {
	return number >= s.start && (!s.hasAddr || s.address == addr)
}

// Run drives every matching handler of sg through the fixture blocks in
// order. Within a block events run first, then calls, then block handlers.
// Data sources created from templates take part from the next block on. A
// failing handler is recorded and the run goes on.
func (r *Runner) Run(ctx context.Context, sg *subgraph.Subgraph, fx *Fixture) (*Report, error) {
	tr, err := fx.compile()
	if err != nil {
		return nil, err
	}

	network := fx.Network
	if network == "" {
		network = r.cfg.Network
	}

	env := wasm.Environment{
		Store:   r.store,
		IPFS:    r.ipfs,
		EthCall: tr.resolve,
		ENS:     fx.ENS,
	}
	if len(fx.IPFS) > 0 {
		files := make(ipfs.Static, len(fx.IPFS))
		for hash, content := range fx.IPFS {
			files[hash] = []byte(content)
		}
		env.IPFS = files
	}

	var sources []*source
	for i := range sg.Manifest.DataSources {
		ds := &sg.Manifest.DataSources[i]
		if ds.Network != network {
			r.logger.Warn("Skipping data source on another network",
				zap.String("data_source", ds.Name),
				zap.String("network", ds.Network),
			)
			continue
		}
		addr, ok := ds.Address()
		sources = append(sources, &source{ds: ds, address: addr, hasAddr: ok, start: ds.Source.StartBlock})
	}
	defer func() {
		for _, src := range sources {
			if src.inst != nil {
				src.inst.Close(ctx)
			}
		}
	}()

	r.logger.Info("Running fixture",
		zap.String("subgraph", sg.Name()),
		zap.String("network", network),
		zap.Int("blocks", len(tr.blocks)),
		zap.Int("data_sources", len(sources)),
	)

	rep := &Report{Subgraph: sg.Name(), Blocks: len(tr.blocks)}
	for _, b := range tr.blocks {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		number := b.header.Number.Uint64()
		var created []*source

		run := func(src *source, trigger, handler string, encode func(*wasm.Instance) (uint32, error)) {
			res := r.invoke(ctx, sg, src, env, encode, handler)
			res.Block, res.Trigger = number, trigger
			rep.Results = append(rep.Results, res)
			created = append(created, r.collect(sg, src, number, rep)...)
		}

		for _, e := range b.events {
			for _, src := range sources {
				if !src.accepts(number, e.ev.Address) {
					continue
				}
				for _, h := range src.ds.Mapping.EventHandlers {
					if NormalizeSignature(h.Event) != e.signature {
						continue
					}
					run(src, TriggerEvent, h.Handler, func(inst *wasm.Instance) (uint32, error) {
						return inst.EncodeEvent(ctx, e.ev)
					})
				}
			}
		}

		for _, c := range b.calls {
			for _, src := range sources {
				if !src.accepts(number, c.c.To) {
					continue
				}
				for _, h := range src.ds.Mapping.CallHandlers {
					if NormalizeSignature(h.Function) != c.signature {
						continue
					}
					run(src, TriggerCall, h.Handler, func(inst *wasm.Instance) (uint32, error) {
						return inst.EncodeCall(ctx, c.c)
					})
				}
			}
		}

		for _, src := range sources {
			if number < src.start {
				continue
			}
			for _, h := range src.ds.Mapping.BlockHandlers {
				if h.Filter.Kind == subgraph.BlockFilterCall && (!src.hasAddr || !b.hasCallTo(src.address)) {
					continue
				}
				run(src, TriggerBlock, h.Handler, func(inst *wasm.Instance) (uint32, error) {
					return inst.EncodeBlock(ctx, &b.header)
				})
			}
		}

		sources = append(sources, created...)
	}

	r.logger.Info("Fixture run complete",
		zap.String("subgraph", sg.Name()),
		zap.Int("invocations", len(rep.Results)),
		zap.Int("failed", rep.Failed()),
		zap.Int("created", len(rep.Created)),
	)
	return rep, nil
}

func (r *Runner) invoke(ctx context.Context, sg *subgraph.Subgraph, src *source, env wasm.Environment,
	encode func(*wasm.Instance) (uint32, error), handler string) Result {
	res := Result{DataSource: src.ds.Name, Handler: handler}
	start := time.Now()
	err := r.call(ctx, sg, src, env, encode, handler)
	res.Duration = time.Since(start)
	res.Err = err

	var abort *wasm.GuestAbortError
	var timeout *wasm.TimeoutError
	switch {
	case err == nil:
		res.Outcome = OutcomeOK
	case errors.As(err, &abort):
		res.Outcome = OutcomeAborted
	case errors.As(err, &timeout):
		res.Outcome = OutcomeTimedOut
	default:
		res.Outcome = OutcomeFailed
	}

	if err != nil {
		r.logger.Warn("Handler failed",
			zap.String("data_source", res.DataSource),
			zap.String("handler", handler),
			zap.Stringer("outcome", res.Outcome),
			zap.Error(err),
		)
	} else {
		r.logger.Debug("Handler succeeded",
			zap.String("data_source", res.DataSource),
			zap.String("handler", handler),
			zap.Duration("duration", res.Duration),
		)
	}
	return res
}

func (r *Runner) call(ctx context.Context, sg *subgraph.Subgraph, src *source, env wasm.Environment,
	encode func(*wasm.Instance) (uint32, error), handler string) error {
	if src.inst == nil {
		var inst *wasm.Instance
		var err error
		if src.created == nil {
			inst, err = r.manager.InstantiateDataSource(ctx, sg, src.ds.Name, env)
		} else {
			inst, err = r.manager.InstantiateTemplate(ctx, sg, *src.created, env)
		}
		if err != nil {
			return err
		}
		src.inst, src.seen = inst, 0
	}

	ptr, err := encode(src.inst)
	if err != nil {
		return err
	}
	err = src.inst.Invoke(ctx, handler, ptr)
	var timeout *wasm.TimeoutError
	if errors.As(err, &timeout) {
		// The module was closed when the deadline hit.
		src.stashCreated()
		src.inst.Close(ctx)
		src.inst = nil
	}
	return err
}

// collect turns the data sources src created since the last call into new
// sources starting after block number.
func (r *Runner) collect(sg *subgraph.Subgraph, src *source, number uint64, rep *Report) []*source {
	var out []*source
	for _, c := range src.takeCreated() {
		rep.Created = append(rep.Created, c)
		tmpl, ok := sg.Template(c.Template)
		if !ok {
			r.logger.Warn("Data source created from unknown template",
				zap.String("template", c.Template))
			continue
		}
		addr, err := templateAddress(c)
		if err != nil {
			r.logger.Warn("Data source created without a valid address",
				zap.String("template", c.Template), zap.Error(err))
			continue
		}
		r.logger.Info("Data source created",
			zap.String("template", c.Template),
			zap.Stringer("address", addr),
			zap.Uint64("start_block", number+1),
		)
		created := c
		out = append(out, &source{
			ds:      tmpl,
			created: &created,
			address: addr,
			hasAddr: true,
			start:   number + 1,
		})
	}
	return out
}

// stashCreated keeps the uncollected data sources of an instance about to
// close.
func (s *source) stashCreated() {
	if s.inst == nil {
		return
	}
	all := s.inst.CreatedDataSources()
	s.stash = append(s.stash, all[s.seen:]...)
	s.seen = len(all)
}

// takeCreated returns the data sources created since the last call.
func (s *source) takeCreated() []wasm.CreatedDataSource {
	s.stashCreated()
	out := s.stash
	s.stash = nil
	return out
}

func templateAddress(c wasm.CreatedDataSource) (graph.Address, error) {
	if len(c.Params) == 0 {
		return graph.Address{}, fmt.Errorf("no address parameter")
	}
	return graph.ParseAddress(c.Params[0])
}
