// Package rate throttles failed logins with Redis fixed-window counters.
//
// A window starts at the first failure (INCR followed by EXPIRE when the
// counter is 1) and the key disappears when it ends. Two counters exist per
// attempt: one for the normalized email and, when enabled, one for the client
// IP. A successful login clears the email counter only.
package rate
