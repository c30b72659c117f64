// Package transport is the network seam of the client: one JSON POST in, one
// fully buffered response out.
//
// [Sender] is the substitution point for tests and for callers that need their
// own HTTP stack. [HTTPSender] is the default implementation. Neither retries.
package transport
