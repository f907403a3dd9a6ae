// Package jwt issues and verifies the signed, time-bounded tokens that carry a
// user identity between requests. Two token classes exist: short-lived access
// tokens and long-lived refresh tokens. Verification is purely cryptographic and
// does not consult any session state.
package jwt
