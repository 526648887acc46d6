package domain

import "time"

// Snapshot is the normalized content of the region of interest at one point
// in time. It is never modified after creation.
type Snapshot struct {
	Content    string    `json:"-"`
	CapturedAt time.Time `json:"capturedAt"`
}

// NewSnapshot creates a Snapshot of content captured at t.
func NewSnapshot(content string, t time.Time) Snapshot {
	return Snapshot{Content: content, CapturedAt: t}
}
