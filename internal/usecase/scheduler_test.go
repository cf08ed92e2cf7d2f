package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CrateDigger/internal/credentials"
	"CrateDigger/internal/domain"
)

type stubLocker struct {
	free     bool
	err      error
	unlocked int
}

func (l *stubLocker) TryLock() (bool, error) { return l.free, l.err }

func (l *stubLocker) Unlock() error {
	l.unlocked++
	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) PublishDigest(_ context.Context, digest string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, digest)
	return nil
}

type manualDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

type countingCycles struct{ n int }

func (c *countingCycles) ObserveCycle(time.Duration, error) { c.n++ }

var trigger = time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)

func TestRunCycleSkipsWhenLocked(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	locker := &stubLocker{}
	s := NewScheduler(SchedulerDeps{Pipeline: h.pipeline, Locker: locker})

	report, err := s.RunCycle(context.Background(), trigger)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Zero(t, locker.unlocked)
	assert.Empty(t, h.platform.batchSizes)

	locker.err = errors.New("lock file unreadable")
	_, err = s.RunCycle(context.Background(), trigger)
	assert.Error(t, err)
}

func TestRunCyclePromotesAndNotifies(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.source.items = []domain.PlatformItem{{ExternalID: "album"}, {ExternalID: "cover"}}
	h.platform.details["album"] = archivalAlbum()
	h.platform.details["cover"] = liveCover()

	locker := &stubLocker{free: true}
	notifier := &recordingNotifier{}
	s := NewScheduler(SchedulerDeps{
		Pipeline: h.pipeline,
		Notifier: notifier,
		Locker:   locker,
		Sources:  []SeedSource{{Kind: domain.SourcePlaylist, Ref: "PLfunk", MaxItems: 10}},
		Limits:   BatchLimits{Enrich: 50, Score: 50, Promote: 50},
	})

	report, err := s.RunCycle(context.Background(), trigger)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 2, report.Ingested)
	assert.Equal(t, 1, report.Batch.Promote.Promoted)
	assert.Equal(t, 1, locker.unlocked)

	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "promoted: 1")
	assert.Contains(t, notifier.messages[0], "2024-05-01T03:00:00Z")

	report, err = s.RunCycle(context.Background(), trigger)
	require.NoError(t, err)
	assert.Zero(t, report.Ingested)
	assert.Len(t, notifier.messages, 1)
}

func TestRunCycleAbortsOnQuota(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.source.err = &credentials.QuotaExhaustedError{Attempts: 1}
	s := NewScheduler(SchedulerDeps{
		Pipeline: h.pipeline,
		Sources:  []SeedSource{{Kind: domain.SourceSearch, Ref: "funk"}},
	})

	_, err := s.RunCycle(context.Background(), trigger)
	require.Error(t, err)
	assert.True(t, credentials.IsQuotaExhausted(err))
	assert.Empty(t, h.platform.batchSizes)
}

func TestRunCycleContinuesPastBrokenSource(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.source.err = errors.New("page unreachable")
	h.seed(t, domain.SourceSearch, "album")
	h.platform.details["album"] = archivalAlbum()
	s := NewScheduler(SchedulerDeps{
		Pipeline: h.pipeline,
		Sources:  []SeedSource{{Kind: domain.SourcePage, Ref: "https://example.org"}},
		Limits:   BatchLimits{Enrich: 5, Score: 5, Promote: 5},
	})

	report, err := s.RunCycle(context.Background(), trigger)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Batch.Promote.Promoted)
}

func TestSchedulerStartStop(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	driver := &manualDriver{}
	cycles := &countingCycles{}
	s := NewScheduler(SchedulerDeps{Driver: driver, Pipeline: h.pipeline, Cycles: cycles})

	require.NoError(t, s.Start(context.Background()))
	require.NotNil(t, driver.job)
	driver.job(trigger)
	assert.Equal(t, 1, cycles.n)

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, driver.stopped)

	assert.NoError(t, NewScheduler(SchedulerDeps{}).Start(context.Background()))
}

func TestFormatReport(t *testing.T) {
	t.Parallel()

	var r CycleReport
	r.Trigger = trigger
	r.Ingested = 4
	r.Batch.Enrich.Enriched = 3
	r.Batch.Score.Scored = 3
	r.Batch.Score.Accepted = 2
	r.Batch.Score.Rejected = 1
	r.Batch.Promote.Promoted = 2

	lines := strings.Split(FormatReport(r), "\n")
	assert.Equal(t, []string{
		"CrateDigger run 2024-05-01T03:00:00Z",
		"ingested: 4",
		"enriched: 3 (missing 0, closed 0)",
		"scored: 3 (accepted 2, rejected 1)",
		"promoted: 2 (linked 0)",
	}, lines)
}
