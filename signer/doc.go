// Package signer binds request payloads to a client identity with HMAC-signed
// tokens and verifies them with the same shared secret.
//
// The signed token is a compact JWT whose claims are the payload fields plus
// iat and exp. The client id travels beside the token in an [Envelope] so the
// receiving side can select the secret before it checks the signature.
package signer
