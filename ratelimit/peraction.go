package ratelimit

import "context"

// PerAction routes each action to its own [Limiter], so login and signup
// can carry different bucket policies behind one port.
type PerAction struct {
	limiters map[string]Limiter
	fallback Limiter
}

// NewPerAction builds a router; fallback serves actions with no explicit
// limiter.
func NewPerAction(fallback Limiter) *PerAction {
	return &PerAction{
		limiters: make(map[string]Limiter),
		fallback: fallback,
	}
}

// Set registers a limiter for one action. Not safe to call after the
// router is in use.
func (p *PerAction) Set(action string, l Limiter) *PerAction {
	p.limiters[action] = l
	return p
}

func (p *PerAction) pick(action string) Limiter {
	if l, ok := p.limiters[action]; ok {
		return l
	}
	return p.fallback
}

// Check implements [Limiter].
func (p *PerAction) Check(ctx context.Context, identifier, action string) (Result, error) {
	return p.pick(action).Check(ctx, identifier, action)
}

// Consume implements [Limiter].
func (p *PerAction) Consume(ctx context.Context, identifier, action string) error {
	return p.pick(action).Consume(ctx, identifier, action)
}

// Reset implements [Limiter].
func (p *PerAction) Reset(ctx context.Context, identifier, action string) error {
	return p.pick(action).Reset(ctx, identifier, action)
}
