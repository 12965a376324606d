// Package timeouts defines shared timeout constants for engine commands.
package timeouts

import "time"

// SaveFlush caps the final save flush after a run, which proceeds even when
// the run itself was interrupted.
const SaveFlush = 5 * time.Second

// Shutdown limits how long telemetry exporters may take to drain.
const Shutdown = 5 * time.Second
