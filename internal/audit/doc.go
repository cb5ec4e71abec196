// Package audit implements async event dispatching for security-relevant
// outcomes: logins, lockouts, code checks, token refresh and revocation, and
// identity linking.
//
// # Components
//
//   - [Sink] is implemented by a channel sink, a JSON-lines writer, a zap
//     logger sink and a no-op. [MultiSink] fans out to several sinks.
//   - [Dispatcher] is a buffered async relay with drop-if-full or
//     block-if-full semantics.
//
// This package does not decide which events to emit. The engine does.
package audit
