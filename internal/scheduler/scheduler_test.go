package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"athensenergy/server/internal/pipeline"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeRunner) RunStored(neighborhood string) (pipeline.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, neighborhood)
	if f.fail[neighborhood] {
		return pipeline.Result{}, errors.New("database is locked")
	}
	return pipeline.Result{RunID: "run-" + neighborhood}, nil
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestRunNow(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"Plaka": true}}
	logger, hook := test.NewNullLogger()
	s := NewScheduler(runner, logger, nil, time.Hour, []string{"Kolonaki", "Plaka", "Pangrati"})

	s.RunNow()

	assert.Equal(t, []string{"Kolonaki", "Plaka", "Pangrati"}, runner.Calls())

	var failed int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			failed++
			assert.Equal(t, "Plaka", e.Data["neighborhood"])
		}
	}
	assert.Equal(t, 1, failed)
}

func TestNewSchedulerDefaultsToAllListings(t *testing.T) {
	runner := &fakeRunner{}
	logger, _ := test.NewNullLogger()
	s := NewScheduler(runner, logger, nil, time.Hour, nil)

	s.RunNow()
	assert.Equal(t, []string{""}, runner.Calls())
}

func TestSchedulerRunsOnTick(t *testing.T) {
	runner := &fakeRunner{}
	logger, _ := test.NewNullLogger()
	clock := clockwork.NewFakeClock()
	s := NewScheduler(runner, logger, clock, 30*time.Minute, nil)

	s.Start()
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Empty(t, runner.Calls())

	clock.Advance(30 * time.Minute)
	assert.Eventually(t, func() bool {
		return len(runner.Calls()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	clock.Advance(30 * time.Minute)
	assert.Eventually(t, func() bool {
		return len(runner.Calls()) == 2
	}, 2*time.Second, 10*time.Millisecond)
}
