// Package auth issues and validates the HMAC-signed JWTs that protect the
// mutating endpoints of the control API.
package auth
