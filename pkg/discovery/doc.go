// Package discovery turns HAP discovery sources into
// hap.AccessoryDescriptor values: _hap._tcp DNS-SD records browsed over
// mDNS for IP accessories and HAP manufacturer data in Bluetooth LE
// advertisements.
//
// The package only parses and feeds; deciding which accessories to pair or
// connect is up to the caller.
package discovery
