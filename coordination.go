package actionsync

import (
	"sync"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
)

// coordinator hands out exclusive ownership of ledger tokens to waits. Only
// the owning wait may erase a token's entry, and a second wait on a token
// that is already owned fails fast instead of sharing (and later
// double-erasing) the entry.
type coordinator struct {
	mu     sync.Mutex
	owners map[string]waitKind
	l      log15.Logger
}

func newCoordinator(l log15.Logger) *coordinator {
	return &coordinator{
		owners: make(map[string]waitKind),
		l:      l,
	}
}

// claim takes ownership of token for a wait of the given kind.
func (c *coordinator) claim(token string, kind waitKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, ok := c.owners[token]; ok {
		c.l.Warn("rejecting overlapping wait", "token", token, "owner", owner, "kind", kind)
		return errors.Wrapf(ErrDuplicateWait, "token %q is owned by a %s wait", token, owner)
	}
	c.owners[token] = kind
	return nil
}

// release gives up ownership of token. Releasing an unowned token is a no-op.
func (c *coordinator) release(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.owners, token)
}

// owned reports whether some wait currently owns token.
func (c *coordinator) owned(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.owners[token]
	return ok
}
