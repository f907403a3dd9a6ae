// Package permission maps named permissions to bits of a [Mask64] and roles to
// the masks they grant.
//
// The built-in table (see [DefaultRoles]) gives USER read access, CREATOR post
// authoring, and ADMIN every permission. A user holding several roles gets
// the union of their masks.
//
// This package is a pure in-memory data structure with no I/O.
package permission
