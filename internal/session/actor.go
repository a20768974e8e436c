package session

import (
	"context"
)

// request is one unit of work for a session actor.
type request struct {
	ctx   context.Context
	fn    func(ctx context.Context) error
	reply chan error
}

// actor serializes every request for one session. It lives while at least
// one caller holds a reference and exits when the last one leaves.
type actor struct {
	mailbox chan request
	refs    int
}

func (a *actor) run() {
	for req := range a.mailbox {
		req.reply <- req.fn(req.ctx)
	}
}

// do runs fn in the critical section of session id. Requests for the same
// session run one at a time in arrival order; requests for different
// sessions run in parallel. If ctx ends before fn is queued, do returns
// ctx.Err() and fn never runs. Once queued, fn runs to completion with a
// context that is not cancelled by the caller.
func (c *Coordinator) do(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	a, ok := c.actors[id]
	if !ok {
		a = &actor{mailbox: make(chan request)}
		c.actors[id] = a
		go a.run()
	}
	a.refs++
	c.mu.Unlock()

	defer c.release(id, a)

	req := request{
		ctx:   context.WithoutCancel(ctx),
		fn:    fn,
		reply: make(chan error, 1),
	}
	select {
	case a.mailbox <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.reply
}

func (c *Coordinator) release(id string, a *actor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a.refs--
	if a.refs == 0 {
		delete(c.actors, id)
		close(a.mailbox)
	}
}

// activeActors returns how many sessions currently have a live actor.
func (c *Coordinator) activeActors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actors)
}
