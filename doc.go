// Package sessioncap issues access and refresh tokens and keeps a hard cap on
// the number of concurrent sessions a user may hold.
//
// Every login creates one session bound to its refresh token. When a user is
// already at the cap, the least recently used session is evicted before the
// new one is stored, and its refresh token stops working. Access tokens are
// verified statelessly and stay valid until they expire.
//
// # Architecture boundaries
//
// [Engine] is the public surface, constructed once through [Builder]. Identity
// lookups, password verification and post ownership are supplied by the
// caller through [CredentialVerifier], [UserStore], [PostStore] and
// [Registrar]. Flow orchestration, audit dispatch and login throttling live
// under internal/.
//
// # What this package must NOT do
//
//   - Write session records anywhere except through the session manager.
//   - Reveal whether a failed login used an unknown email or a wrong password.
//   - Mutate the signing secret after Build.
package sessioncap
