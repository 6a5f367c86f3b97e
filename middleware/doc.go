// Package middleware adapts goIdentity.Engine to net/http.
//
// [RequireAccess] verifies the bearer access token with Engine.ValidateAccess
// and stores the claims in the request context. Verification is stateless:
// no store is consulted, so a token stays valid until it expires even after
// logout. [ClientMetadata] records the caller's IP and User-Agent for the
// engine.
package middleware
