package main

import (
	"fmt"
	"strings"
	"ticketwatch/internal/fetcher"
	"ticketwatch/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func checkCommand(a *app) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Fetches the page once and prints the normalized region of interest",
		Long: "Fetches the page once and prints the region of interest exactly as it is compared " +
			"between checks. Use it to verify REGION_SELECTOR and the volatile attribute and selector lists.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx

			normalizer, err := newNormalizer(a.cfg)
			if err != nil {
				return err
			}

			page, err := fetcher.New(nil, fetcher.NewOptions(a.cfg)).Fetch(ctx, a.cfg.Target.URL)
			if err != nil {
				return err
			}
			if raw {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), page)

				return nil
			}

			region, err := normalizer.Normalize(page)
			if err != nil {
				return err
			}

			logger.Info(ctx, "region extracted",
				zap.String("selector", a.cfg.Target.RegionSelector),
				zap.Int("bytes", len(page)),
				zap.Int("lines", strings.Count(region, "\n")))
			_, _ = fmt.Fprint(cmd.OutOrStdout(), region)

			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print the fetched page instead of the region")

	return cmd
}
