// Package notify delivers change notifications through email and SMS.
package notify

import (
	"context"
	"ticketwatch/pkg/domain"
)

// Channel sends a notification event through one medium. A channel talks to
// a single external service and must honor the deadline of ctx.
//
//go:generate mockgen -package mocknotify -source=interface.go -destination=mock/mocknotify.go *
type Channel interface {
	Kind() domain.ChannelKind
	Send(ctx context.Context, event domain.NotificationEvent) error
}
