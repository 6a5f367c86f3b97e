// Package internal holds opaque token generation and hashing shared by the
// engine, the session store tooling and the load test.
//
// Sub-packages:
//
//   - audit: async event dispatch and sinks
//   - guard: the account lockout state machine
package internal
