package tasksync

import (
	"context"
	"time"
)

// Run reloads the task list every interval until ctx is cancelled. Load
// failures are logged; the engine keeps serving what it has.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.Load(ctx); err != nil && ctx.Err() == nil {
				e.logger.Printf("tasksync: periodic sync: %v", err)
			}
		}
	}
}
