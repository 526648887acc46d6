package main

import (
	"context"
	"errors"
	"fmt"
	"ticketwatch/internal/notify"
	"ticketwatch/pkg/domain"
	"ticketwatch/pkg/logger"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func notifyTestCommand(a *app) *cobra.Command {
	var withCapture bool

	cmd := &cobra.Command{
		Use:   "notify-test",
		Short: "Sends a test notification through the enabled channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx

			kinds := a.cfg.Channels()
			if len(kinds) == 0 {
				return errors.New("no notification channel enabled, use --email or --sms")
			}

			event := domain.NotificationEvent{
				ID:         uuid.NewString(),
				DetectedAt: time.Now(),
				URL:        a.cfg.Target.URL,
				Changes:    []string{"+ this is a test notification"},
			}

			if withCapture {
				if c := newCapturer(a.cfg); c != nil {
					path, err := c.Capture(context.WithoutCancel(ctx), a.cfg.Target.URL, a.cfg.Target.RegionSelector)
					if err != nil {
						logger.Warn(ctx, "could not capture evidence", zap.Error(err))
					}
					event.EvidencePath = path
				}
			}

			results := newDispatcher(a.cfg).Dispatch(ctx, event, kinds)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), notify.Summary(results))

			var errs []error
			for _, r := range results {
				errs = append(errs, r.Err)
			}

			return errors.Join(errs...)
		},
	}

	cmd.Flags().BoolVar(&withCapture, "capture", false, "attach a fresh capture of the region")

	return cmd
}
