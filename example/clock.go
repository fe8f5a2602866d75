package main

import (
	"context"
	"time"

	"github.com/jpalmerr/devserve"
)

// RunClock broadcasts the current time on the hub every interval until ctx
// is done. Broadcasts after the hub closes reach no one.
func RunClock(ctx context.Context, hub *devserve.Hub, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			hub.Broadcast("server time " + t.Format(time.TimeOnly))
		}
	}
}
