// Package goNoPass is a client for passwordless, email-code authentication
// against a remote authorization service.
//
// The flow is the following:
//
//  1. The application calls [Client.SendAuth] with the user's email. The server
//     starts a challenge (typically by emailing a verification code) and
//     returns an opaque challenge token.
//  2. The user types the code they received.
//  3. The application calls [Client.SendValidation] with the email, the token
//     from step 1 and the code. On success the server returns a session JWT.
//
// A failed validation leaves the challenge open: the caller may retry with a
// new code and the same token until the server expires it.
//
// # Signed requests
//
// Every request body is {"clientId": ..., "data": ...}, where data is an
// HMAC-signed token (see package signer) over the request payload, keyed by
// the secret shared with the server. The client id travels in plaintext so
// the server can look up the secret before verifying.
//
// # Architecture boundaries
//
// The Client keeps no session state. It does not cache challenge tokens and
// does not enforce that a token came from a prior SendAuth for the same
// email; that pairing is the caller's job unless a [ChallengeTracker] is
// configured. The network seam is [transport.Sender], so tests can replace
// it without a server.
//
// # What this package must NOT do
//
//   - Retry, back off or otherwise repeat a request.
//   - Impose a timeout the caller did not configure.
//   - Log secrets, tokens, codes or JWTs. Logging is diagnostic only; every
//     failure is also returned as an error.
package goNoPass
