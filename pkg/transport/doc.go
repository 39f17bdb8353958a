// Package transport carries HAP requests to an accessory over IP or BLE.
//
// Both variants implement Session. An IP session speaks HTTP/1.1 over a
// TCP connection that is encrypted once pair-verify completes; a single
// reader goroutine separates EVENT/1.0 notifications from responses, which
// are matched to requests in submission order. A BLE session runs HAP-BLE
// procedures over a GATTLink, fragmenting PDUs to the link MTU, with every
// procedure serialized through a shared queue.Queue.
//
// Lost IP connections are re-established, re-verified and resubscribed
// before an error reaches subscribers. Lost BLE links fail the procedure in
// flight; the next procedure reconnects.
package transport
