// Package audit provides the event model and asynchronous dispatcher behind
// the veriauth audit surface.
//
// Events are emitted by Manager operations and forwarded to a caller-supplied
// Sink on a dedicated goroutine, so a slow sink never blocks authentication.
// The dispatcher buffer is bounded; overflow behavior (drop vs. backpressure)
// is configurable and drops are counted.
package audit
