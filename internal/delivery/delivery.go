// Package delivery holds the inbound adapters that expose the use cases to callers.
package delivery

import "context"

// Delivery is a long-running inbound server started by the process bootstrap.
// Serve blocks until the server stops; shutdown is driven by fx lifecycle hooks.
type Delivery interface {
	Serve(ctx context.Context) error
}
