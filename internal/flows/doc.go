// Package flows contains the orchestration behind every Engine operation.
//
// Each flow function (RunLogin, RunRefresh, RunValidate, ...) accepts a typed
// dependency struct and returns a result carrying either the payload or a
// classified failure kind. The root package maps failure kinds to its public
// sentinel errors, audit events and metrics, which keeps the Engine thin.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import sessioncap (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency interfaces.
package flows
