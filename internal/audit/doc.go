// Package audit buffers security events (logins, refreshes, evictions,
// logouts) and hands them to a [Sink] off the request path.
//
// The package decides nothing about which events exist beyond naming them;
// the engine chooses when to emit. Sinks perform whatever I/O they need, the
// dispatcher itself performs none.
package audit
