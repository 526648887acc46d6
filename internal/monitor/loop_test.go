package monitor_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"ticketwatch/internal/content"
	"ticketwatch/internal/monitor"
	"ticketwatch/pkg/domain"
	"ticketwatch/pkg/metrics"
	"ticketwatch/pkg/serrors"
	"time"

	mockmonitor "ticketwatch/internal/monitor/mock"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const url = "https://tickets.example.com/"

var bothChannels = []domain.ChannelKind{domain.ChannelEmail, domain.ChannelSMS}

type fixture struct {
	fetcher    *mockmonitor.MockFetcher
	capturer   *mockmonitor.MockCapturer
	dispatcher *mockmonitor.MockDispatcher
	loop       *monitor.Loop
}

// newFixture wires a loop with a real normalizer and detector around mocked
// I/O, so tests speak in terms of pages.
func newFixture(t *testing.T, opts monitor.Options) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	f := &fixture{
		fetcher:    mockmonitor.NewMockFetcher(ctrl),
		capturer:   mockmonitor.NewMockCapturer(ctrl),
		dispatcher: mockmonitor.NewMockDispatcher(ctrl),
	}

	normalizer, err := content.NewNormalizer(content.NormalizerOptions{
		RegionSelector:     "#page_outer",
		VolatileAttributes: []string{"data-refresh-id"},
	})
	require.NoError(t, err)

	opts.URL = url
	opts.RegionSelector = "#page_outer"
	if opts.Interval == 0 {
		opts.Interval = time.Minute
	}

	f.loop, err = monitor.New(monitor.Deps{
		Fetcher:    f.fetcher,
		Normalizer: normalizer,
		Detector:   content.NewDetector(20),
		Capturer:   f.capturer,
		Dispatcher: f.dispatcher,
	}, opts)
	require.NoError(t, err)

	return f
}

func page(region string) string {
	return `<html><body><p>Last refreshed ` + time.Now().Format(time.RFC3339Nano) + `</p>` +
		`<div id="page_outer" data-refresh-id="` + time.Now().Format("150405.000000") + `">` +
		region + `</div></body></html>`
}

func okResults(_ context.Context, _ domain.NotificationEvent, kinds []domain.ChannelKind) []domain.ChannelResult {
	out := make([]domain.ChannelResult, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, domain.ChannelResult{Channel: k})
	}

	return out
}

func TestRunCycle_ColdStartNeverNotifies(t *testing.T) {
	f := newFixture(t, monitor.Options{Channels: bothChannels})
	f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>A</div>"), nil)

	res := f.loop.RunCycle(context.Background())

	require.Equal(t, 1, res.Cycle)
	require.Equal(t, domain.OutcomeUnchanged, res.Outcome)
	require.NoError(t, res.Err)
	require.Empty(t, res.Deliveries)
	require.NotNil(t, f.loop.Baseline())
	require.Equal(t, res.Snapshot.Content, f.loop.Baseline().Content)
}

func TestRunCycle_EndToEnd(t *testing.T) {
	f := newFixture(t, monitor.Options{Channels: bothChannels})

	gomock.InOrder(
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>A</div>"), nil),
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>A</div>"), nil),
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>A</div><div>B</div>"), nil),
	)
	f.capturer.EXPECT().Capture(gomock.Any(), url, "#page_outer").Return("/tmp/tickets_page.png", nil)

	var got domain.NotificationEvent
	f.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any(), bothChannels).DoAndReturn(
		func(ctx context.Context, ev domain.NotificationEvent, kinds []domain.ChannelKind) []domain.ChannelResult {
			got = ev

			return okResults(ctx, ev, kinds)
		},
	).Times(1)

	ctx := context.Background()
	require.Equal(t, domain.OutcomeUnchanged, f.loop.RunCycle(ctx).Outcome)
	require.Equal(t, domain.OutcomeUnchanged, f.loop.RunCycle(ctx).Outcome)

	res := f.loop.RunCycle(ctx)
	require.Equal(t, domain.OutcomeChanged, res.Outcome)
	require.Len(t, res.Deliveries, 2)

	require.NotEmpty(t, got.ID)
	require.Equal(t, url, got.URL)
	require.Equal(t, 3, got.Cycle)
	require.Equal(t, "/tmp/tickets_page.png", got.EvidencePath)
	require.Equal(t, res.Snapshot.CapturedAt, got.DetectedAt)
	require.Contains(t, strings.Join(got.Changes, "\n"), "+ B")

	st := f.loop.Status()
	require.Equal(t, 3, st.Cycle)
	require.Equal(t, domain.OutcomeChanged, st.LastOutcome)
	require.Equal(t, 1, st.ChangesDetected)
	require.NotNil(t, st.LastChangeAt)
	require.Equal(t, f.loop.Baseline().Content, res.Snapshot.Content)
}

func TestRunCycle_NoiseDoesNotNotify(t *testing.T) {
	f := newFixture(t, monitor.Options{Channels: bothChannels})

	f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(
		`<html><body><div id="page_outer" data-refresh-id="1"><a class="x" href="/t">Tickets</a></div></body></html>`, nil)
	f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(
		`<html><body><span>ad</span><div data-refresh-id="2" id="page_outer">`+"\n  "+
			`<a href="/t" class="x">  Tickets </a></div></body></html>`, nil)

	ctx := context.Background()
	f.loop.RunCycle(ctx)
	require.Equal(t, domain.OutcomeUnchanged, f.loop.RunCycle(ctx).Outcome)
}

func TestRunCycle_FetchErrorKeepsBaseline(t *testing.T) {
	f := newFixture(t, monitor.Options{Channels: []domain.ChannelKind{domain.ChannelEmail}})

	gomock.InOrder(
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>A</div>"), nil),
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return("", serrors.With(serrors.ErrFetch, "unexpected status: 503")),
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>A</div><div>B</div>"), nil),
	)
	f.capturer.EXPECT().Capture(gomock.Any(), gomock.Any(), gomock.Any()).Return("/tmp/x.png", nil)
	f.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(okResults)

	ctx := context.Background()
	f.loop.RunCycle(ctx)
	baseline := f.loop.Baseline()

	res := f.loop.RunCycle(ctx)
	require.Equal(t, domain.OutcomeFetchError, res.Outcome)
	require.ErrorIs(t, res.Err, serrors.ErrFetch)
	require.Nil(t, res.Snapshot)
	require.Same(t, baseline, f.loop.Baseline())

	require.Equal(t, domain.OutcomeChanged, f.loop.RunCycle(ctx).Outcome)
}

func TestRunCycle_ParseErrorKeepsBaseline(t *testing.T) {
	f := newFixture(t, monitor.Options{})

	gomock.InOrder(
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>A</div>"), nil),
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(`<html><body><h1>Maintenance</h1></body></html>`, nil),
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>A</div>"), nil),
	)

	ctx := context.Background()
	f.loop.RunCycle(ctx)
	before := f.loop.Baseline()

	res := f.loop.RunCycle(ctx)
	require.Equal(t, domain.OutcomeParseError, res.Outcome)
	require.ErrorIs(t, res.Err, serrors.ErrParse)
	require.Same(t, before, f.loop.Baseline())

	// the broken page must not register as a change once the layout is back
	require.Equal(t, domain.OutcomeUnchanged, f.loop.RunCycle(ctx).Outcome)
}

func TestRunCycle_CaptureFailureStillNotifies(t *testing.T) {
	f := newFixture(t, monitor.Options{Channels: bothChannels})

	gomock.InOrder(
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>A</div>"), nil),
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>Sold out</div>"), nil),
	)
	f.capturer.EXPECT().Capture(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", serrors.With(serrors.ErrCapture, "could not launch browser"))
	f.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any(), bothChannels).DoAndReturn(
		func(ctx context.Context, ev domain.NotificationEvent, kinds []domain.ChannelKind) []domain.ChannelResult {
			require.False(t, ev.HasEvidence())

			return okResults(ctx, ev, kinds)
		},
	)

	ctx := context.Background()
	f.loop.RunCycle(ctx)
	require.Equal(t, domain.OutcomeChanged, f.loop.RunCycle(ctx).Outcome)
}

func TestRunCycle_ChannelFailureDoesNotStopLoop(t *testing.T) {
	f := newFixture(t, monitor.Options{Channels: bothChannels})

	gomock.InOrder(
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>A</div>"), nil),
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>B</div>"), nil),
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>B</div>"), nil),
	)
	f.capturer.EXPECT().Capture(gomock.Any(), gomock.Any(), gomock.Any()).Return("/tmp/x.png", nil)
	f.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any(), bothChannels).Return([]domain.ChannelResult{
		{Channel: domain.ChannelEmail, Err: serrors.With(serrors.ErrChannel, "535 bad credentials")},
		{Channel: domain.ChannelSMS},
	})

	ctx := context.Background()
	f.loop.RunCycle(ctx)

	res := f.loop.RunCycle(ctx)
	require.Equal(t, domain.OutcomeChanged, res.Outcome)
	require.NoError(t, res.Err)
	require.False(t, res.Deliveries[0].OK())
	require.True(t, res.Deliveries[1].OK())

	// baseline moved on, so the same content is not reported twice
	require.Equal(t, domain.OutcomeUnchanged, f.loop.RunCycle(ctx).Outcome)
}

func TestRunCycle_NoChannels(t *testing.T) {
	f := newFixture(t, monitor.Options{})

	gomock.InOrder(
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>A</div>"), nil),
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>B</div>"), nil),
	)

	ctx := context.Background()
	f.loop.RunCycle(ctx)

	res := f.loop.RunCycle(ctx)
	require.Equal(t, domain.OutcomeChanged, res.Outcome)
	require.Empty(t, res.Deliveries)
}

func TestRunCycle_DispatchSurvivesCancellation(t *testing.T) {
	f := newFixture(t, monitor.Options{Channels: []domain.ChannelKind{domain.ChannelSMS}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>A</div>"), nil)
	f.fetcher.EXPECT().Fetch(gomock.Any(), url).DoAndReturn(func(context.Context, string) (string, error) {
		cancel()

		return page("<div>B</div>"), nil
	})
	f.capturer.EXPECT().Capture(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _, _ string) (string, error) {
			require.NoError(t, ctx.Err())

			return "/tmp/x.png", nil
		},
	)
	f.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, ev domain.NotificationEvent, kinds []domain.ChannelKind) []domain.ChannelResult {
			require.NoError(t, ctx.Err())

			return okResults(ctx, ev, kinds)
		},
	)

	f.loop.RunCycle(ctx)
	require.Equal(t, domain.OutcomeChanged, f.loop.RunCycle(ctx).Outcome)
}

func TestSleepDuration(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		elapsed  time.Duration
		want     time.Duration
	}{
		{name: "remaining time", interval: time.Minute, elapsed: 5 * time.Second, want: 55 * time.Second},
		{name: "instant cycle", interval: time.Second, elapsed: 0, want: time.Second},
		{name: "exact overrun", interval: time.Minute, elapsed: time.Minute, want: 11 * time.Second},
		{name: "overrun", interval: 10 * time.Second, elapsed: 70 * time.Second, want: 11 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, monitor.SleepDuration(tt.interval, tt.elapsed, 11*time.Second))
		})
	}
}

// fakeClock advances only when told to.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = c.t.Add(d)
}

func TestRun_TimingFloor(t *testing.T) {
	f := newFixture(t, monitor.Options{Interval: time.Minute, MinDelay: 11 * time.Second})
	clock := &fakeClock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	f.loop.SetClock(clock.Now)

	work := []time.Duration{5 * time.Second, 70 * time.Second, 60 * time.Second}
	for _, d := range work {
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).DoAndReturn(func(context.Context, string) (string, error) {
			clock.Advance(d)

			return page("<div>A</div>"), nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var slept []time.Duration
	f.loop.SetSleep(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		if len(slept) == len(work) {
			cancel()

			return context.Canceled
		}

		return nil
	})

	require.NoError(t, f.loop.Run(ctx))
	require.Equal(t, []time.Duration{55 * time.Second, 11 * time.Second, 11 * time.Second}, slept)
	require.Equal(t, domain.StateStopped, f.loop.Status().State)
	require.Equal(t, 3, f.loop.Status().Cycle)
}

func TestRun_ErrorsDoNotStopLoop(t *testing.T) {
	f := newFixture(t, monitor.Options{})

	gomock.InOrder(
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return("", serrors.Wrap(serrors.ErrFetch, errors.New("connection refused"), "could not send request")),
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return("<html></html>", nil),
		f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>A</div>"), nil),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cycles := 0
	f.loop.SetSleep(func(context.Context, time.Duration) error {
		cycles++
		if cycles == 3 {
			cancel()
		}

		return nil
	})

	require.NoError(t, f.loop.Run(ctx))
	require.Equal(t, domain.OutcomeUnchanged, f.loop.Status().LastOutcome)
	require.NotNil(t, f.loop.Baseline())
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t, monitor.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, f.loop.Run(ctx))
	require.Equal(t, 0, f.loop.Status().Cycle)
	require.Equal(t, domain.StateStopped, f.loop.Status().State)
}

func TestRun_CancelWakesSleep(t *testing.T) {
	f := newFixture(t, monitor.Options{Interval: time.Hour})
	f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>A</div>"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.loop.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return f.loop.Status().State == domain.StateSleeping
	}, 2*time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop while sleeping")
	}
	require.Equal(t, domain.StateStopped, f.loop.Status().State)
}

func TestNew_Validation(t *testing.T) {
	_, err := monitor.New(monitor.Deps{}, monitor.Options{Interval: time.Minute})
	require.Error(t, err)

	ctrl := gomock.NewController(t)
	deps := monitor.Deps{
		Fetcher:    mockmonitor.NewMockFetcher(ctrl),
		Normalizer: mockmonitor.NewMockNormalizer(ctrl),
		Detector:   mockmonitor.NewMockDetector(ctrl),
		Dispatcher: mockmonitor.NewMockDispatcher(ctrl),
	}
	_, err = monitor.New(deps, monitor.Options{})
	require.Error(t, err)

	l, err := monitor.New(deps, monitor.Options{URL: url, Interval: time.Minute})
	require.NoError(t, err)
	require.Equal(t, domain.StateIdle, l.Status().State)
	require.Equal(t, url, l.Status().URL)
}

func TestRunCycle_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	mp, err := metrics.NewMeterProvider(reg)
	require.NoError(t, err)

	f := newFixture(t, monitor.Options{MeterProvider: mp})
	f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return(page("<div>A</div>"), nil)
	f.fetcher.EXPECT().Fetch(gomock.Any(), url).Return("", serrors.KindOnly(serrors.ErrFetch))

	ctx := context.Background()
	f.loop.RunCycle(ctx)
	f.loop.RunCycle(ctx)

	families, err := reg.Gather()
	require.NoError(t, err)

	outcomes := map[string]float64{}
	sawHistogram := false
	for _, mf := range families {
		// classic scrapers reject dots in metric names
		require.NotContains(t, mf.GetName(), ".")

		switch {
		case mf.GetName() == "ticketwatch_cycles_total":
			for _, m := range mf.GetMetric() {
				for _, l := range m.GetLabel() {
					if l.GetName() == "outcome" {
						outcomes[l.GetValue()] += m.GetCounter().GetValue()
					}
				}
			}
		case mf.GetName() == "ticketwatch_cycle_duration_seconds":
			sawHistogram = true
		}
	}

	require.Equal(t, map[string]float64{"unchanged": 1, "fetch_error": 1}, outcomes)
	require.True(t, sawHistogram)
}
