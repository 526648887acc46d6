package domain

import "time"

// ChannelKind names a notification channel.
type ChannelKind string

const (
	ChannelEmail ChannelKind = "email"
	ChannelSMS   ChannelKind = "sms"
)

// NotificationEvent describes a detected change of the monitored region.
type NotificationEvent struct {
	ID         string
	DetectedAt time.Time
	URL        string
	Cycle      int
	// EvidencePath is the captured image of the region, empty when capture
	// was disabled or failed.
	EvidencePath string
	// Changes lists "- " and "+ " prefixed lines between baseline and
	// current content, possibly truncated.
	Changes []string
}

// HasEvidence reports whether an evidence artifact is attached.
func (e NotificationEvent) HasEvidence() bool {
	return e.EvidencePath != ""
}

// ChannelResult is the outcome of sending one event through one channel.
type ChannelResult struct {
	Channel  ChannelKind
	Err      error
	Duration time.Duration
}

// OK reports whether the channel delivered the event.
func (r ChannelResult) OK() bool {
	return r.Err == nil
}
