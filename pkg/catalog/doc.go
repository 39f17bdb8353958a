// Package catalog maps HAP service and characteristic types onto semantic
// metadata for the layer that exposes accessories to users: a label, a
// value type, unit, bounds, an enum table and capability tags.
//
// Lookups go from the most to the least specific key: the (service,
// characteristic) pair, then the characteristic type alone, then vendor
// extensions registered by raw UUID. A miss is not an error; Describe simply
// omits characteristics the catalog does not know.
//
// Vendor extensions are loaded from YAML:
//
//	extensions:
//	  - uuid: E863F10D-079E-48FF-8F27-9C2605A29F52
//	    label: power
//	    type: number
//	    unit: watt
//	    tags: [InstantaneousPowerProperty]
//	  - uuid: 9A6F2C3E-2B8D-4F31-A8C6-5E11A0D4F001
//	    label: preset
//	    type: integer
//	    enum: {0: relax, 1: read, 2: energize}
//	    action:
//	      name: selectPreset
//	      title: Select preset
//
// An extension with an action describes a normally hidden characteristic
// that is exposed only as a write-only action.
package catalog
