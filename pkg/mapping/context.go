package mapping

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
	"github.com/woxQAQ/subgraph-abi/pkg/host"
)

// Context is the per-invocation view of a module handed to a handler. It is
// invalidated when the handler returns; handles and the context itself must
// not be kept past that point.
type Context struct {
	m       *Module
	handler string
	logger  *zap.Logger
	done    bool

	decodeErr error
}

func (c *Context) check() {
	if c.done {
		panic(ErrContextDone)
	}
}

// Handler returns the name of the running handler.
func (c *Context) Handler() string { return c.handler }

// DecodeError returns the *asc.EncodingError, wrapped, that kept the
// handler argument from being decoded. The argument is nil in that case.
func (c *Context) DecodeError() error { return c.decodeErr }

// Host returns the import dispatcher.
func (c *Context) Host() *host.Dispatcher {
	c.check()
	return c.m.host
}

// Arena returns the module arena.
func (c *Context) Arena() *asc.Arena {
	c.check()
	return c.m.arena
}

// Logger returns a logger that writes through log.log, tagged with the
// handler name.
func (c *Context) Logger() *zap.Logger {
	c.check()
	return c.logger
}

// Load reads an entity from the store. ok is false when it does not exist.
func (c *Context) Load(entityType, id string) (*graph.Entity, bool, error) {
	return c.Host().StoreGet(entityType, id)
}

// Save writes e under its id field.
func (c *Context) Save(entityType string, e *graph.Entity) error {
	id, ok := e.ID()
	if !ok {
		return fmt.Errorf("save %s: entity has no string id field", entityType)
	}
	return c.Host().StoreSet(entityType, id, e)
}

// Remove deletes an entity.
func (c *Context) Remove(entityType, id string) error {
	return c.Host().StoreRemove(entityType, id)
}
