// Package transport owns the broker-facing session layer.
//
// Ownership boundary:
// - endpoint parsing and defaulting
// - Context lifecycle (init before use, teardown on shutdown)
// - Session open/send/poll/receive/close over framed TCP
//
// Sessions follow a strict request/reply discipline. The retry protocol in
// internal/client decides when a session is discarded; this package only
// guarantees that Close is immediate (zero linger) and that received
// payloads are owned copies.
package transport
