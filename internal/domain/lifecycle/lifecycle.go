// Package lifecycle holds timing constants shared by start and stop hooks.
package lifecycle

import "time"

// DefaultTimeout bounds connect, ping and graceful shutdown calls.
const DefaultTimeout = 10 * time.Second
