// Package hap holds the types shared by every layer of the HomeKit
// Accessory Protocol controller: the accessory descriptor produced by
// discovery and the error taxonomy used to classify failures.
//
// # Error taxonomy
//
// Every error returned by this module wraps exactly one of the sentinel
// errors below, so callers can decide how to react with errors.Is:
//
//	ErrDecode               malformed TLV/PDU/HTTP; fatal to the message only
//	ErrAuthentication       SRP or signature proof mismatch; restart pairing
//	ErrCrypto               AEAD tag failure; the connection is closed
//	ErrTransport            connection drop or timeout; retried with backoff
//	ErrValidation           value cannot be coerced to the declared metadata
//	ErrUnsupportedOperation characteristic lacks the requested permission
package hap
