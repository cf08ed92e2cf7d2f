package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"CrateDigger/internal/credentials"
	"CrateDigger/internal/domain"
	"CrateDigger/internal/ports"
)

// SeedSource is a discovery source ingested at the start of every cycle.
type SeedSource struct {
	Kind     domain.SourceKind
	Ref      string
	MaxItems int
}

// Locker guards a cycle against concurrent writers on the same host.
type Locker interface {
	TryLock() (bool, error)
	Unlock() error
}

// CycleObserver records how long each started cycle took.
type CycleObserver interface {
	ObserveCycle(d time.Duration, err error)
}

// SchedulerDeps wires the recurring job.
type SchedulerDeps struct {
	Driver   ports.Scheduler
	Pipeline *Pipeline
	Notifier ports.Notifier
	Locker   Locker
	Sources  []SeedSource
	Limits   BatchLimits
	Cycles   CycleObserver
	Logger   *slog.Logger
}

// Scheduler wires the interval driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	notifier ports.Notifier
	locker   Locker
	sources  []SeedSource
	limits   BatchLimits
	cycles   CycleObserver
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	return &Scheduler{
		driver:   deps.Driver,
		pipeline: deps.Pipeline,
		notifier: deps.Notifier,
		locker:   deps.Locker,
		sources:  deps.Sources,
		limits:   deps.Limits,
		cycles:   deps.Cycles,
		logger:   deps.Logger,
	}
}

// CycleReport summarises one scheduled run.
type CycleReport struct {
	Trigger  time.Time
	Skipped  bool
	Ingested int
	Batch    BatchResult
}

// Start registers the cycle with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		started := time.Now()
		report, err := s.RunCycle(ctx, trigger)
		if s.cycles != nil && !report.Skipped {
			s.cycles.ObserveCycle(time.Since(started), err)
		}
		if err != nil {
			s.log().Error("pipeline cycle failed", "trigger", trigger, "error", err)
			return
		}
		if !report.Skipped {
			s.log().Info("pipeline cycle done", "trigger", trigger, "ingested", report.Ingested,
				"enriched", report.Batch.Enrich.Enriched, "scored", report.Batch.Score.Scored,
				"promoted", report.Batch.Promote.Promoted)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

// RunCycle ingests every seed source, runs one batch and posts a report when samples were promoted.
// A cycle is skipped when another process holds the lock. Quota exhaustion aborts the cycle.
func (s *Scheduler) RunCycle(ctx context.Context, trigger time.Time) (CycleReport, error) {
	report := CycleReport{Trigger: trigger}

	if s.locker != nil {
		locked, err := s.locker.TryLock()
		if err != nil {
			return report, fmt.Errorf("acquire pipeline lock: %w", err)
		}
		if !locked {
			report.Skipped = true
			s.log().Info("pipeline cycle skipped, lock held elsewhere")
			return report, nil
		}
		defer func() {
			if err := s.locker.Unlock(); err != nil {
				s.log().Warn("release pipeline lock failed", "error", err)
			}
		}()
	}

	for _, src := range s.sources {
		res, err := s.pipeline.Ingest(ctx, src.Kind, src.Ref, src.MaxItems)
		report.Ingested += res.Added
		if err != nil {
			if isFatal(err) {
				return report, fmt.Errorf("ingest %s %q: %w", src.Kind, src.Ref, err)
			}
			s.log().Warn("seed source failed", "kind", src.Kind, "ref", src.Ref, "transient", credentials.IsTransient(err), "error", err)
		}
	}

	batch, err := s.pipeline.RunBatch(ctx, s.limits)
	report.Batch = batch
	if err != nil {
		return report, err
	}

	if s.notifier != nil && batch.Promote.Promoted > 0 {
		if err := s.notifier.PublishDigest(ctx, FormatReport(report)); err != nil {
			s.log().Warn("publish run report failed", "error", err)
		}
	}
	return report, nil
}

// FormatReport renders a cycle as a short plain-text message.
func FormatReport(r CycleReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CrateDigger run %s\n", r.Trigger.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "ingested: %d\n", r.Ingested)
	fmt.Fprintf(&b, "enriched: %d (missing %d, closed %d)\n", r.Batch.Enrich.Enriched, r.Batch.Enrich.Missing, r.Batch.Enrich.Abandoned)
	fmt.Fprintf(&b, "scored: %d (accepted %d, rejected %d)\n", r.Batch.Score.Scored, r.Batch.Score.Accepted, r.Batch.Score.Rejected)
	fmt.Fprintf(&b, "promoted: %d (linked %d)", r.Batch.Promote.Promoted, r.Batch.Promote.Linked)
	return b.String()
}

func (s *Scheduler) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.New(slog.DiscardHandler)
}
