package monitor

import (
	"context"
	"ticketwatch/pkg/domain"
)

// Fetcher retrieves the raw markup of a page.
//
//go:generate mockgen -package mockmonitor -source=ports.go -destination=mock/mockmonitor.go *
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Normalizer reduces raw markup to the canonical text of the region of interest.
type Normalizer interface {
	Normalize(raw string) (string, error)
}

// Detector compares the baseline with the current snapshot.
type Detector interface {
	HasChanged(previous *domain.Snapshot, current domain.Snapshot) bool
	Changes(previous, current string) []string
}

// Capturer saves an image of the region of interest and returns its path.
type Capturer interface {
	Capture(ctx context.Context, url, selector string) (string, error)
}

// Dispatcher delivers an event through the given channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, event domain.NotificationEvent, kinds []domain.ChannelKind) []domain.ChannelResult
}
