// Package node tracks a single worker as seen from the coordinator.
//
// A Node owns the coordinator side of the worker's connection and an
// explicit lifecycle, so "is this identity still valid" is a state lookup
// rather than a side-channel existence check.
//
// # Node Lifecycle
//
//	Spawned -> Ready -> Busy -> Ready -> ... -> Disconnected
//
// MarkReady is only legal from Spawned (handshake completed) or Busy (reply
// received), which makes re-admission idempotent: a duplicate readiness
// signal returns an error instead of re-queueing the worker.
//
// # Thread Safety
//
// State transitions are protected by a RWMutex and safe for concurrent use.
package node
