package scheduler

import (
	"context"
	"log"
	"time"
)

type Task func(ctx context.Context) error

// Every runs task immediately and then repeatedly until ctx is done.
// interval is consulted before each wait, so a changed configuration value
// takes effect on the next tick without a restart. Task errors are logged,
// never fatal.
func Every(ctx context.Context, interval func() time.Duration, name string, task Task) {
	go func() {
		if err := task(ctx); err != nil {
			log.Printf("[%s] error: %v", name, err)
		}
	}()

	t := time.NewTimer(interval())
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := task(ctx); err != nil {
				log.Printf("[%s] error: %v", name, err)
			}
			t.Reset(interval())
		}
	}
}
