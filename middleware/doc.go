// Package middleware adapts sessioncap.Engine to net/http.
//
// # Guards
//
//   - [Guard] verifies the bearer access token and stores the
//     sessioncap.Principal in the request context.
//   - [RequireRoles] and [RequirePermission] gate a route on the principal's
//     roles or permission mask.
//   - [RequireOwner] admits only the author of the addressed post.
//   - [ClientIP] records the remote address for audit and login throttling.
//
// Expired, forged and otherwise invalid tokens all produce the same 401
// response so a client cannot tell an expired token from an evicted session.
//
// This package translates HTTP semantics into Engine calls. It does not parse
// tokens or touch the session store itself.
package middleware
