// Package timeouts defines shared timeout constants used across the client.
// Centralizing these values prevents drift between subsystems and makes the
// durations discoverable.
package timeouts

import "time"

// HTTPRequest caps the time allowed for a single request to the remote
// generation service, including a full sync batch submission.
const HTTPRequest = 30 * time.Second

// Probe caps the wait time for one connectivity reachability check.
const Probe = 3 * time.Second

// ReadHeader limits how long the status HTTP server waits for request
// headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the status HTTP server waits for in-flight
// requests during graceful shutdown.
const Shutdown = 5 * time.Second
