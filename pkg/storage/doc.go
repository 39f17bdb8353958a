// Package storage persists pairing data between runs.
//
// The core never writes pairing data itself: pair-setup hands a
// *pairing.Data to the caller, which saves it here keyed by the
// accessory's device ID. Two stores are provided. MemoryStore is for tests
// and short-lived tools; FileStore keeps a single JSON document with one
// CBOR blob per accessory.
package storage
