package providers

import (
	"context"
	"fmt"
	"time"
)

// shutdownTimeout bounds the graceful stop of each component.
const shutdownTimeout = 30 * time.Second

// stopWithin calls stop with a context that expires after shutdownTimeout.
func stopWithin(component string, stop func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := stop(ctx); err != nil {
		return fmt.Errorf("stop %s: %w", component, err)
	}
	return nil
}
