package oracle

import (
	"context"
	"time"
)

// DurationObserver records oracle call latency. Satisfied by
// *telemetry.Metrics.
type DurationObserver interface {
	ObserveOracle(oracle string, d time.Duration)
}

// Instrument wraps a Completer so every call records its duration under
// the given oracle name. Failed calls are recorded too. A nil observer
// returns next unwrapped.
func Instrument(next Completer, name string, obs DurationObserver) Completer {
	if obs == nil {
		return next
	}
	return &instrumented{next: next, name: name, obs: obs}
}

type instrumented struct {
	next Completer
	name string
	obs  DurationObserver
}

func (i *instrumented) Complete(ctx context.Context, system, user string, opts ...Option) (string, error) {
	start := time.Now()
	out, err := i.next.Complete(ctx, system, user, opts...)
	i.obs.ObserveOracle(i.name, time.Since(start))
	return out, err
}
