// Package events provides event bus implementations.
//
// Run and step events are broadcast: every subscriber of a topic sees every
// event published after it subscribed.
//
// Implementations:
//   - redis: Redis Streams, so several podgen processes share one event feed
//   - memory: in-process fan-out, the default for single-process deployments
package events
