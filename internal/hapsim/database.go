package hapsim

import "github.com/backkem/hap/pkg/accessory"

const lightbulb = `{"accessories": [{"aid": 1, "services": [
  {"iid": 1, "type": "3E", "characteristics": [
    {"iid": 2, "type": "14", "format": "bool", "perms": ["pw"]},
    {"iid": 3, "type": "20", "format": "string", "perms": ["pr"], "value": "Acme"},
    {"iid": 4, "type": "21", "format": "string", "perms": ["pr"], "value": "LB-1"},
    {"iid": 5, "type": "23", "format": "string", "perms": ["pr"], "value": "Desk Lamp"},
    {"iid": 6, "type": "30", "format": "string", "perms": ["pr"], "value": "0001"},
    {"iid": 7, "type": "52", "format": "string", "perms": ["pr"], "value": "1.0.0"}
  ]},
  {"iid": 10, "type": "43", "primary": true, "characteristics": [
    {"iid": 11, "type": "25", "format": "bool", "perms": ["pr", "pw", "ev"], "value": false},
    {"iid": 12, "type": "8", "format": "int", "perms": ["pr", "pw", "ev"], "value": 50,
     "unit": "percentage", "minValue": 0, "maxValue": 100, "minStep": 1},
    {"iid": 13, "type": "11", "format": "float", "perms": ["pr", "ev"], "value": 21.5,
     "unit": "celsius", "minValue": -40, "maxValue": 100, "minStep": 0.1}
  ]}
]}]}`

const bridge = `{"accessories": [
  {"aid": 1, "services": [
    {"iid": 1, "type": "3E", "characteristics": [
      {"iid": 2, "type": "14", "format": "bool", "perms": ["pw"]},
      {"iid": 3, "type": "20", "format": "string", "perms": ["pr"], "value": "Acme"},
      {"iid": 4, "type": "21", "format": "string", "perms": ["pr"], "value": "BR-1"},
      {"iid": 5, "type": "23", "format": "string", "perms": ["pr"], "value": "Hub"},
      {"iid": 6, "type": "30", "format": "string", "perms": ["pr"], "value": "0100"},
      {"iid": 7, "type": "52", "format": "string", "perms": ["pr"], "value": "2.1.0"}
    ]}
  ]},
  {"aid": 2, "services": [
    {"iid": 1, "type": "3E", "characteristics": [
      {"iid": 2, "type": "14", "format": "bool", "perms": ["pw"]},
      {"iid": 5, "type": "23", "format": "string", "perms": ["pr"], "value": "Hall Light"},
      {"iid": 6, "type": "30", "format": "string", "perms": ["pr"], "value": "0101"}
    ]},
    {"iid": 10, "type": "43", "characteristics": [
      {"iid": 11, "type": "25", "format": "bool", "perms": ["pr", "pw", "ev"], "value": true}
    ]}
  ]},
  {"aid": 3, "services": [
    {"iid": 1, "type": "3E", "characteristics": [
      {"iid": 2, "type": "14", "format": "bool", "perms": ["pw"]},
      {"iid": 5, "type": "23", "format": "string", "perms": ["pr"], "value": "Porch Sensor"},
      {"iid": 6, "type": "30", "format": "string", "perms": ["pr"], "value": "0102"}
    ]},
    {"iid": 10, "type": "8A", "characteristics": [
      {"iid": 11, "type": "11", "format": "float", "perms": ["pr", "ev"], "value": 12.5, "unit": "celsius"}
    ]}
  ]}
]}`

// LightbulbDatabase returns a dimmable lightbulb with a temperature
// reading:
//
//	1.11 On (bool, pr pw ev)
//	1.12 Brightness (int 0..100, pr pw ev)
//	1.13 Current Temperature (float, pr ev)
func LightbulbDatabase() *accessory.Accessories {
	return mustDecode(lightbulb)
}

// BridgeDatabase returns a bridge (aid 1) exposing a light (aid 2) and a
// temperature sensor (aid 3).
func BridgeDatabase() *accessory.Accessories {
	return mustDecode(bridge)
}

func mustDecode(s string) *accessory.Accessories {
	db, err := accessory.Decode([]byte(s))
	if err != nil {
		panic(err)
	}
	return db
}
