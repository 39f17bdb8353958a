// Package accessory models an accessory's attribute database as returned by
// GET /accessories or rebuilt from HAP-BLE signature reads: accessories
// hold services, services hold characteristics, each addressed by an
// instance identifier.
//
// Characteristic.Coerce prepares a value for writing so that it fits the
// characteristic's declared format and metadata.
package accessory
