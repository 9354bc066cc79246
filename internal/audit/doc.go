// Package audit dispatches auth lifecycle events to pluggable sinks.
//
// [Dispatcher] is a buffered async relay with drop-if-full or block-if-full
// semantics. Sinks write to a channel, a JSON-lines writer or a slog logger.
// The package does not decide which events to emit; the Engine does.
package audit
