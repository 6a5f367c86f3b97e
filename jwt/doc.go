// Package jwt issues and verifies short-lived access tokens (HS256 or Ed25519)
// with strict algorithm, issuer and expiry checks.
package jwt
