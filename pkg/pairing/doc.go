// Package pairing implements the controller side of the HAP pairing
// protocols: pair-setup (SRP6a, M1 to M6), pair-verify (X25519, M1 to M4)
// and the pairings administration requests.
//
// The state machines are transport neutral. They exchange TLV8 bodies
// through an Exchanger, which the IP transport maps to HTTP POSTs and the
// BLE transport maps to writes on the pairing characteristics.
//
// # Display-PIN flow
//
// Some accessories generate their setup code on a screen only once pairing
// begins. Calling Setup.Run with DisplayPIN sends M1, keeps the accessory's
// salt and SRP public key, and returns ErrPINRequired. Setup.Resume then
// continues from M3 with the code the user read off the display. The kept
// state expires after SetupConfig.PendingTTL.
package pairing
