package engine

import "time"

// SetCancelPoll shortens the cancellation poll so tests observe a
// cancellation without waiting out the production interval.
func (o *Orchestrator) SetCancelPoll(d time.Duration) { o.cancelPoll = d }

// CachedParses reports how many parsed documents the orchestrator holds.
func (o *Orchestrator) CachedParses() int { return o.cache.Len() }
