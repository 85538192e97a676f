// Package auth guards the operator commands.
//
// There are no user accounts. The operator proves knowledge of a PIN,
// stored as an Argon2id hash in the config, and receives a short-lived
// HS256 JWT. Read endpoints stay open so displays and the console work
// without a login.
package auth
