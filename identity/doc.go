// Package identity provides the user directory and post store collaborators
// the engine consumes: credential verification, user lookup by ID, account
// registration and post authorship. Each comes in an in-memory flavour for
// tests and single-process runs and a PostgreSQL flavour backed by pgxpool.
//
// Passwords are stored only as encoded hashes produced by a password.Hasher.
// An unknown email and a wrong password are indistinguishable to callers.
package identity
