package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	out string
	err error
}

func (s *stubCompleter) Complete(ctx context.Context, system, user string, opts ...Option) (string, error) {
	return s.out, s.err
}

type recordingObserver struct {
	names     []string
	durations []time.Duration
}

func (r *recordingObserver) ObserveOracle(oracle string, d time.Duration) {
	r.names = append(r.names, oracle)
	r.durations = append(r.durations, d)
}

func TestInstrument_RecordsDuration(t *testing.T) {
	obs := &recordingObserver{}
	c := Instrument(&stubCompleter{out: "ok"}, "planner", obs)

	out, err := c.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	require.Len(t, obs.names, 1)
	assert.Equal(t, "planner", obs.names[0])
	assert.GreaterOrEqual(t, obs.durations[0], time.Duration(0))
}

func TestInstrument_RecordsFailedCalls(t *testing.T) {
	obs := &recordingObserver{}
	c := Instrument(&stubCompleter{err: errors.New("backend down")}, "filter", obs)

	_, err := c.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.Equal(t, []string{"filter"}, obs.names)
}

func TestInstrument_NilObserverPassesThrough(t *testing.T) {
	next := &stubCompleter{out: "ok"}
	c := Instrument(next, "justify", nil)
	assert.Same(t, Completer(next), c)
}
