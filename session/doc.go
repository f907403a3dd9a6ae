// Package session persists login sessions and enforces the per-user cap on
// concurrent sessions.
//
// # Eviction
//
// When a user who already holds Limit sessions logs in again, the session with
// the oldest LastUsedAt is deleted before the new one is inserted. Ties go to
// the lowest ID; IDs are UUIDv7 so that is the earliest created.
//
// # Backends
//
// [RedisStore] and [PostgresStore] implement [AtomicCreator] and evict+insert in
// one backend operation (Lua script, advisory-locked transaction). Any other
// [Store], such as [MemoryStore], is serialized per user by the [Manager].
//
// # What this package must NOT do
//
//   - Import sessioncap or jwt (no upward imports).
//   - Interpret token contents; a refresh token is an opaque lookup key here.
package session
