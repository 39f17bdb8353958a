// Package tlv implements the TLV8 encoding used by HAP pairing messages
// and HAP-BLE PDU bodies.
//
// Each item is a one-octet type, a one-octet length and up to 255 value
// octets. Longer values are split into consecutive items of the same type
// and reassembled when decoding. A zero-length item of type Separator
// divides list entries, as in a List Pairings response.
package tlv
