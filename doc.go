// Package goIdentity is a credential and session lifecycle engine for
// email and password accounts.
//
// An [Engine] is assembled with a [Builder] from a [CredentialStore]
// (users, reset and verification rows), a Redis client for refresh
// sessions and a notify.Mailer. It covers signup, login, logout, refresh
// rotation, forgot and reset password, email verification and whoami.
// Failed logins feed a per-user lockout; access tokens are short-lived JWTs
// checked without any store round-trip.
//
// Every error returned by Engine methods carries an [ErrorKind]; callers map
// it to a transport status with [KindOf] and show [PublicMessage] to users.
//
// Engine methods are safe for concurrent use after Build.
package goIdentity
