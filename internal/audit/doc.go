// Package audit defines the audit event model, its sinks, and the async
// dispatcher that decouples sinks from request paths.
package audit
