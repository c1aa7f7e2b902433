// Package session provides the durable client-side key/value store that carries
// flow artifacts across navigations and process restarts.
//
// # Keys
//
// Exactly three logical values are persisted: the theme preference and the two
// halves of a pending security verification ([KeySecuritySessionID] and
// [KeyUserEmail]). Any other key is rejected with [ErrUnknownKey].
//
// # Backends
//
// [RedisStore] keeps values in Redis under a per-profile prefix, [FileStore]
// keeps them in a 0600 JSON document, and [MemoryStore] keeps them in process.
// None of them expire values; a stale pending record is invalidated by the flow
// or by the backend expiring the underlying session.
//
// # What this package must NOT do
//
//   - Import authflow or gateway (no upward imports).
//   - Interpret the values it stores.
package session
