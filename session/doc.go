// Package session persists refresh-token sessions in Redis.
//
// # Key layout
//
//	<prefix>:u:<userID>:<tokenHash>  encoded Session, TTL = session lifetime
//	<prefix>:r:<tokenHash>           userID, same TTL
//
// The first key lets every session of a user be found with SCAN; the second
// resolves a presented refresh token without knowing its owner. Both keys are
// written in one MULTI and removed together.
//
// [Store.Take] is the only way a refresh token is redeemed: it reads and
// deletes both keys in one Lua script, so a token can be redeemed once even
// under concurrent callers.
//
// This package never sees raw tokens; callers pass hashes.
package session
