// Package monitor runs the polling loop: fetch the page, normalize the region
// of interest, compare it with the baseline and notify on change.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"ticketwatch/internal/config"
	"ticketwatch/pkg/domain"
	"ticketwatch/pkg/logger"
	"ticketwatch/pkg/serrors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultMinDelay is slept when a cycle took longer than the interval.
const DefaultMinDelay = 11 * time.Second

// Options configure the polling loop.
type Options struct {
	// URL is the monitored page.
	URL string
	// RegionSelector is handed to the capturer to locate the region.
	RegionSelector string
	// Interval is the target period between two cycle starts.
	Interval time.Duration
	// MinDelay is slept instead when a cycle overran Interval.
	MinDelay time.Duration
	// Channels are the enabled notification channels.
	Channels []domain.ChannelKind

	// MeterProvider and TracerProvider default to the otel globals.
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// NewOptions maps the loop settings out of the application config.
func NewOptions(cfg *config.Config) Options {
	return Options{
		URL:            cfg.Target.URL,
		RegionSelector: cfg.Target.RegionSelector,
		Interval:       cfg.Interval(),
		MinDelay:       cfg.Polling.MinDelay,
		Channels:       cfg.Channels(),
	}
}

// Deps are the collaborators of the loop. Capturer is optional.
type Deps struct {
	Fetcher    Fetcher
	Normalizer Normalizer
	Detector   Detector
	Capturer   Capturer
	Dispatcher Dispatcher
}

// Loop is the polling state machine. Cycles run sequentially; the baseline is
// owned by the loop and only Status may be called from other goroutines.
type Loop struct {
	deps    Deps
	options Options

	inst   *instruments
	tracer trace.Tracer

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	baseline *domain.Snapshot
	cycle    int

	mu     sync.RWMutex
	status domain.Status
}

// New creates a Loop in the idle state.
func New(deps Deps, options Options) (*Loop, error) {
	if deps.Fetcher == nil || deps.Normalizer == nil || deps.Detector == nil || deps.Dispatcher == nil {
		return nil, errors.New("fetcher, normalizer, detector and dispatcher are required")
	}
	if options.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", options.Interval)
	}
	if options.MinDelay <= 0 {
		options.MinDelay = DefaultMinDelay
	}
	if options.MeterProvider == nil {
		options.MeterProvider = otel.GetMeterProvider()
	}
	if options.TracerProvider == nil {
		options.TracerProvider = otel.GetTracerProvider()
	}

	inst, err := newInstruments(options.MeterProvider)
	if err != nil {
		return nil, err
	}

	return &Loop{
		deps:    deps,
		options: options,
		inst:    inst,
		tracer:  options.TracerProvider.Tracer(instrumentationName),
		now:     time.Now,
		sleep:   sleepContext,
		status:  domain.Status{URL: options.URL, State: domain.StateIdle},
	}, nil
}

// SleepDuration returns how long to wait after a cycle whose work took
// elapsed: the rest of interval, or minDelay once nothing is left.
func SleepDuration(interval, elapsed, minDelay time.Duration) time.Duration {
	if d := interval - elapsed; d > 0 {
		return d
	}

	return minDelay
}

// Run executes cycles until ctx is cancelled. It returns nil on cancellation;
// no cycle error ever stops the loop.
func (l *Loop) Run(ctx context.Context) error {
	logger.Info(ctx, "watching page",
		zap.String("url", l.options.URL),
		zap.Duration("interval", l.options.Interval),
		zap.Any("channels", l.options.Channels))
	defer l.setState(domain.StateStopped)

	for {
		if ctx.Err() != nil {
			logger.Info(ctx, "watcher stopped", zap.Int("cycles", l.cycle))

			return nil
		}

		result := l.RunCycle(ctx)

		if ctx.Err() != nil {
			logger.Info(ctx, "watcher stopped", zap.Int("cycles", l.cycle))

			return nil
		}

		d := SleepDuration(l.options.Interval, result.Elapsed, l.options.MinDelay)
		l.setState(domain.StateSleeping)
		logger.Debug(ctx, "sleeping", zap.Int("cycle", result.Cycle), zap.Duration("duration", d))

		if err := l.sleep(ctx, d); err != nil {
			logger.Info(ctx, "watcher stopped", zap.Int("cycles", l.cycle))

			return nil
		}
	}
}

// RunCycle performs exactly one fetch, normalize, compare and, on change,
// dispatch. Failures are folded into the result and never returned.
func (l *Loop) RunCycle(ctx context.Context) domain.CycleResult {
	l.cycle++
	n := l.cycle
	start := l.now()

	ctx = logger.WithFields(ctx, zap.Int("cycle", n))
	ctx, span := l.tracer.Start(ctx, "monitor.cycle", trace.WithAttributes(
		attribute.Int("cycle", n),
		attribute.String("url", l.options.URL),
	))
	defer span.End()

	result := l.runCycle(ctx, n)
	result.Elapsed = l.now().Sub(start)

	span.SetAttributes(attribute.String("outcome", string(result.Outcome)))
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, string(result.Outcome))
	}
	l.inst.record(ctx, result)
	l.finish(result)

	return result
}

func (l *Loop) runCycle(ctx context.Context, n int) domain.CycleResult {
	result := domain.CycleResult{Cycle: n}

	l.setState(domain.StateFetching)
	raw, err := l.deps.Fetcher.Fetch(ctx, l.options.URL)
	if err != nil {
		logger.Warn(ctx, "could not fetch page", zap.Error(err), zap.String("kind", kindOf(err)))
		result.Outcome, result.Err = domain.OutcomeFetchError, err

		return result
	}

	l.setState(domain.StateNormalizing)
	text, err := l.deps.Normalizer.Normalize(raw)
	if err != nil {
		logger.Warn(ctx, "could not normalize page", zap.Error(err), zap.String("kind", kindOf(err)))
		result.Outcome, result.Err = domain.OutcomeParseError, err

		return result
	}

	l.setState(domain.StateComparing)
	current := domain.NewSnapshot(text, l.now())
	result.Snapshot = &current

	previous := l.baseline
	changed := previous != nil && l.deps.Detector.HasChanged(previous, current)
	l.baseline = &current

	if !changed {
		l.setState(domain.StateUnchanged)
		result.Outcome = domain.OutcomeUnchanged
		if previous == nil {
			logger.Info(ctx, "baseline established", zap.Int("bytes", len(text)))
		} else {
			logger.Info(ctx, "no change")
		}

		return result
	}

	result.Outcome = domain.OutcomeChanged
	changes := l.deps.Detector.Changes(previous.Content, current.Content)
	logger.Info(ctx, "change detected", zap.Int("changedLines", len(changes)))
	for _, line := range changes {
		logger.Debug(ctx, "changed line", zap.String("line", line))
	}

	if len(l.options.Channels) == 0 {
		logger.Warn(ctx, "no notification channel enabled")

		return result
	}

	l.setState(domain.StateDispatching)
	result.Deliveries = l.notify(ctx, n, current, changes)

	return result
}

// notify captures evidence and dispatches the event. Both run detached from
// ctx cancellation so a shutdown does not cut a batch in half; the capturer
// and the dispatcher bound themselves.
func (l *Loop) notify(
	ctx context.Context,
	n int,
	current domain.Snapshot,
	changes []string) []domain.ChannelResult {
	ctx = context.WithoutCancel(ctx)

	event := domain.NotificationEvent{
		ID:         uuid.NewString(),
		DetectedAt: current.CapturedAt,
		URL:        l.options.URL,
		Cycle:      n,
		Changes:    changes,
	}

	if l.deps.Capturer != nil {
		path, err := l.deps.Capturer.Capture(ctx, l.options.URL, l.options.RegionSelector)
		if err != nil {
			logger.Warn(ctx, "could not capture evidence", zap.Error(err))
		} else {
			event.EvidencePath = path
		}
	}

	results := l.deps.Dispatcher.Dispatch(ctx, event, l.options.Channels)

	delivered := 0
	for _, r := range results {
		if r.OK() {
			delivered++
		}
	}
	logger.Info(ctx, "notifications dispatched",
		zap.String("eventId", event.ID),
		zap.Int("delivered", delivered),
		zap.Int("failed", len(results)-delivered))

	return results
}

// Status returns a copy of the current loop status.
func (l *Loop) Status() domain.Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.status
}

// Baseline returns the current baseline, nil before the first successful
// cycle. It must not be called concurrently with Run.
func (l *Loop) Baseline() *domain.Snapshot {
	return l.baseline
}

func (l *Loop) setState(s domain.State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.status.State = s
}

func (l *Loop) finish(result domain.CycleResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	at := l.now()
	l.status.Cycle = result.Cycle
	l.status.LastOutcome = result.Outcome
	l.status.LastCycleAt = &at
	if result.Snapshot != nil {
		l.status.BaselineAt = &result.Snapshot.CapturedAt
	}
	if result.Outcome == domain.OutcomeChanged {
		l.status.LastChangeAt = &result.Snapshot.CapturedAt
		l.status.ChangesDetected++
	}
}

func kindOf(err error) string {
	if k := serrors.KindOf(err); k != nil {
		return k.Error()
	}

	return "UNKNOWN"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
