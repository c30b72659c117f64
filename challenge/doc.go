// Package challenge provides a Redis-backed record of which email each
// challenge token was issued for.
//
// It backs the optional pairing check of the client: SendAuth records the
// returned token, SendValidation refuses tokens that were not issued for the
// same email, and a successful validation forgets the token. The client
// itself keeps no state; several client instances may share one store.
package challenge
