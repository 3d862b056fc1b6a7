// Package auth issues and verifies the bearer tokens that guard the REST
// and websocket APIs.
//
// Tokens are HS256 JWTs carrying a subject and a role. Roles map to a
// static permission set:
//
//	viewer  read selections and states
//	user    viewer + change selections and call services
//	admin   user + write states, manage the registry and config entries
//
// There is no user database: tokens are minted by the operator with the
// "couchcontrol token" command and validated by signature and expiry only.
package auth
