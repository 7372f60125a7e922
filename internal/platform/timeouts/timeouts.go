// Package timeouts defines shared timeout constants used across the service.
// Centralizing these values keeps the durations discoverable and prevents
// drift between components.
package timeouts

import "time"

// AIComplete caps a single AI provider completion attempt. A provider that
// exceeds it is treated as failed for the call and the coordinator moves to
// the next provider in the fallback order.
const AIComplete = 10 * time.Second

// GatewaySend caps an outbound message delivery to the chat gateway.
const GatewaySend = 5 * time.Second

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
