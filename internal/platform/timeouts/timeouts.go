// Package timeouts defines shared timeout constants used across storyroom
// processes.
package timeouts

import "time"

// Shutdown limits how long a process waits to flush telemetry on exit.
const Shutdown = 5 * time.Second

// StoreCheck is how often a server re-checks its store for health reporting.
const StoreCheck = 15 * time.Second
