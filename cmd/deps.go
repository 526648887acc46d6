package main

import (
	"fmt"
	"ticketwatch/internal/capture"
	"ticketwatch/internal/config"
	"ticketwatch/internal/content"
	"ticketwatch/internal/fetcher"
	"ticketwatch/internal/monitor"
	"ticketwatch/internal/notify"

	"go.opentelemetry.io/otel/metric"
)

// maxReportedChanges caps the changed lines carried by a notification.
const maxReportedChanges = 50

func newNormalizer(cfg *config.Config) (*content.Normalizer, error) {
	n, err := content.NewNormalizer(content.NewNormalizerOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("could not create normalizer: %w", err)
	}

	return n, nil
}

// newChannels builds the enabled notification channels.
func newChannels(cfg *config.Config) []notify.Channel {
	var channels []notify.Channel
	if cfg.Email.Enabled.Bool() {
		channels = append(channels, notify.NewEmailChannel(notify.NewEmailOptions(cfg)))
	}
	if cfg.SMS.Enabled.Bool() {
		channels = append(channels, notify.NewSMSChannel(notify.NewSMSOptions(cfg)))
	}

	return channels
}

func newDispatcher(cfg *config.Config) *notify.Dispatcher {
	return notify.NewDispatcher(cfg.Polling.DispatchTimeout, newChannels(cfg)...)
}

// newCapturer returns nil when evidence capture is disabled.
func newCapturer(cfg *config.Config) monitor.Capturer {
	if !cfg.Capture.Enabled.Bool() {
		return nil
	}

	return capture.New(capture.NewOptions(cfg))
}

func newLoop(cfg *config.Config, mp metric.MeterProvider) (*monitor.Loop, error) {
	normalizer, err := newNormalizer(cfg)
	if err != nil {
		return nil, err
	}

	opts := monitor.NewOptions(cfg)
	opts.MeterProvider = mp

	loop, err := monitor.New(monitor.Deps{
		Fetcher:    fetcher.New(nil, fetcher.NewOptions(cfg)),
		Normalizer: normalizer,
		Detector:   content.NewDetector(maxReportedChanges),
		Capturer:   newCapturer(cfg),
		Dispatcher: newDispatcher(cfg),
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("could not create polling loop: %w", err)
	}

	return loop, nil
}
