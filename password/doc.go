// Package password hashes and verifies user passwords.
//
// [Argon2] (Argon2id, PHC string format) is the default scheme. [Bcrypt] is
// available for imported credentials, and [Auto] verifies either format while
// hashing new passwords with its primary scheme.
//
// This package owns hashing and verification only. It never stores or logs
// plaintext passwords.
package password
