package wayback

import (
	"context"

	"golang.org/x/time/rate"
)

// Gate bounds how many index queries run at once and how fast they start.
// One Gate is shared by every session of a run.
type Gate struct {
	slots   chan struct{}
	limiter *rate.Limiter
}

// NewGate allows concurrency queries in flight and perSecond query starts.
// A non-positive rate disables the limiter.
func NewGate(concurrency int, perSecond float64) *Gate {
	if concurrency < 1 {
		concurrency = 1
	}
	g := &Gate{slots: make(chan struct{}, concurrency)}
	if perSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return g
}

// Acquire waits for a slot and a rate token. The returned release must be
// called once the query is done.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case g.slots <- struct{}{}:
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			<-g.slots
			return nil, err
		}
	}
	return func() { <-g.slots }, nil
}
