// Package session holds the state of a verified HAP session: the two
// directional ChaCha20-Poly1305 keys derived from the pair-verify shared
// secret and their 64-bit message counters.
//
// Keys and counters are never reused across connections. A reconnect runs
// pair-verify again and builds a new Session.
//
// Conn layers the IP framing on top: each frame is a two-octet
// little-endian plaintext length (also the AAD), the ciphertext and a
// 16-octet tag, with at most 1024 plaintext octets per frame.
package session
