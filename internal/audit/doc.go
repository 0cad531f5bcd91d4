// Package audit defines the structured event model and the asynchronous
// dispatcher that forwards events to a caller-supplied sink without blocking
// token operations.
package audit
