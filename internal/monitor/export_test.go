package monitor

import (
	"context"
	"time"
)

func (l *Loop) SetClock(now func() time.Time) { l.now = now }

func (l *Loop) SetSleep(sleep func(ctx context.Context, d time.Duration) error) { l.sleep = sleep }
