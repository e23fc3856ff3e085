package rpclient

import (
	"github.com/EgorLis/arcorclient/internal/observe"
	"github.com/EgorLis/arcorclient/internal/wire"
)

// Deliver offers an inbound frame to the pending calls. It returns true when the
// frame completed a call. Malformed frames, frames without an integer id,
// frames that also carry an event name and frames nobody waits for are dropped.
func (c *Client) Deliver(frame []byte) bool {
	env := wire.Peek(frame)
	if env.Kind != wire.KindResponse || !env.HasID || wire.LooksLikeEvent(frame) {
		c.log.Debug().Str("kind", env.Kind.String()).Msg("frame not matched")
		return false
	}

	var resp wire.Response
	if err := wire.Decode(frame, &resp); err != nil {
		c.log.Debug().Err(err).Int64("id", env.ID).Msg("response dropped")
		return false
	}

	p := c.take(resp.ID, resp.Response, c.validateNames)
	if p == nil {
		c.log.Debug().Int64("id", resp.ID).Str("response", resp.Response).Msg("no pending call")
		return false
	}
	p.timer.Stop()
	p.done <- outcome{resp: &resp, err: c.runHook(p, &resp)}
	return true
}

func (c *Client) runHook(p *pendingCall, resp *wire.Response) (err error) {
	if p.onResponse == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = observe.PanicError(r)
			c.log.Error().Err(err).Str("request", p.request).Int64("id", p.id).Msg("response hook panic")
		}
	}()
	p.onResponse(resp)
	return nil
}

// FailPending completes every pending call with err. Used when the connection
// is gone and no response can arrive anymore.
func (c *Client) FailPending(err error) int {
	c.mu.Lock()
	calls := make([]*pendingCall, 0, len(c.pending))
	for id, p := range c.pending {
		calls = append(calls, p)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, p := range calls {
		p.timer.Stop()
		p.done <- outcome{err: err}
	}
	if len(calls) > 0 {
		c.log.Debug().Int("calls", len(calls)).Err(err).Msg("failed pending calls")
	}
	return len(calls)
}
