// Package rpc implements a type-safe RPC client bridging an in-process
// caller to a separate host process over a request/response plus
// event-bus transport. It supports query and mutation procedures
// (single unary call), subscription procedures (reconnecting,
// resumable event streams), batching of multiple unary calls into a
// single round trip, and a composable interceptor chain for
// cross-cutting concerns (auth, logging, retry, rate limiting).
//
// Typed Proc handles (Query, Mutation, Subscription) declare individual
// procedures; the caller picks the call engine (Call) or the
// subscription engine (Subscribe), and Call refuses paths registered
// with WithSubscriptionPaths. The wire contract between client and
// host is transport-agnostic: any type implementing Transport can
// carry it, whether that's an in-memory bus for tests, a WebSocket, or
// plain HTTP for the unary-only subset.
package rpc
