// Package password hashes and verifies account passwords.
//
// # Output format
//
// New hashes are argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Bcrypt hashes ($2a$, $2b$, $2y$) still verify so that accounts imported from
// other systems can log in; [Hasher.NeedsRehash] reports them (and argon2id
// hashes with weaker parameters) so the caller can re-hash after a successful
// login.
//
// This package never stores passwords and never logs them.
package password
