package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"ticketwatch/pkg/domain"
	"ticketwatch/pkg/logger"
	"ticketwatch/pkg/serrors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultDispatchTimeout bounds one channel send when no timeout is configured.
const DefaultDispatchTimeout = 30 * time.Second

// Dispatcher fans a notification event out to the registered channels.
type Dispatcher struct {
	channels map[domain.ChannelKind]Channel
	timeout  time.Duration
}

// NewDispatcher registers channels by their kind. A later channel replaces an
// earlier one of the same kind.
func NewDispatcher(timeout time.Duration, channels ...Channel) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}

	d := &Dispatcher{channels: make(map[domain.ChannelKind]Channel, len(channels)), timeout: timeout}
	for _, c := range channels {
		d.channels[c.Kind()] = c
	}

	return d
}

// Dispatch sends event through every kind in kinds exactly once and returns
// one result per distinct kind, in the order the kinds were first listed.
// Channels run concurrently, each bounded by the dispatch timeout. A failing,
// slow or panicking channel never affects the others.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	event domain.NotificationEvent,
	kinds []domain.ChannelKind) []domain.ChannelResult {
	kinds = dedupe(kinds)
	results := make([]domain.ChannelResult, len(kinds))

	var g errgroup.Group
	for i, kind := range kinds {
		g.Go(func() error {
			results[i] = d.send(ctx, event, kind)

			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *Dispatcher) send(
	ctx context.Context,
	event domain.NotificationEvent,
	kind domain.ChannelKind) (result domain.ChannelResult) {
	ctx = logger.WithFields(ctx, zap.String("channel", string(kind)), zap.String("eventId", event.ID))
	start := time.Now()
	result.Channel = kind

	defer func() {
		if r := recover(); r != nil {
			result.Err = serrors.With(serrors.ErrChannel, "%s channel panicked: %v", kind, r)
		}
		result.Duration = time.Since(start)

		if result.Err != nil {
			logger.Warn(ctx, "notification failed", zap.Error(result.Err), zap.Duration("duration", result.Duration))
		} else {
			logger.Info(ctx, "notification sent", zap.Duration("duration", result.Duration))
		}
	}()

	c, ok := d.channels[kind]
	if !ok {
		result.Err = serrors.With(serrors.ErrChannel, "%s channel not configured", kind)

		return result
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := c.Send(ctx, event); err != nil {
		result.Err = channelError(kind, err)
	}

	return result
}

func channelError(kind domain.ChannelKind, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, serrors.ErrTimeout) {
		err = serrors.Wrap(serrors.ErrTimeout, err, "timed out")
	}

	return serrors.Wrap(serrors.ErrChannel, err, "%s delivery failed", kind)
}

func dedupe(kinds []domain.ChannelKind) []domain.ChannelKind {
	out := make([]domain.ChannelKind, 0, len(kinds))
	for _, k := range kinds {
		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}

	return out
}

// Summary renders results as "email=ok sms=failed" for logs.
func Summary(results []domain.ChannelResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		if !r.OK() {
			status = "failed"
		}
		parts = append(parts, fmt.Sprintf("%s=%s", r.Channel, status))
	}

	return strings.Join(parts, " ")
}
