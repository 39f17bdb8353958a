// Package controller ties the HAP building blocks into one entry point for
// a gateway.
//
// A Controller keeps a registry of accessories keyed by device ID and fed
// from discovery through HandleDescriptor. It pairs with them (Pair, or
// ProvidePIN when the code is only shown on the accessory), persists the
// resulting pairing data in a storage.PairingStore, opens verified IP or
// BLE sessions and runs characteristic reads, writes and subscriptions.
//
// Each accessory server is represented by a Device. The accessories it
// exposes are surfaced as LogicalDevices: one for a plain accessory, one
// per bridged accessory for a bridge, identified as "<device>-<aid>".
// LogicalDevices are described through the characteristic catalog, so a
// consumer can work with named properties instead of instance IDs.
//
// Value changes and lifecycle transitions are reported through
// Config.OnEvent.
//
// Basic usage:
//
//	ctrl, err := controller.New(controller.Config{
//	    Store:   storage.NewMemoryStore(),
//	    OnEvent: func(ev controller.Event) { fmt.Println(ev) },
//	})
//	ctrl.HandleDescriptor(desc)
//	err = ctrl.Pair(ctx, desc.DeviceID, "123-45-678")
//	props, err := ctrl.Properties(ctx, desc.DeviceID)
package controller
