package hap

// Category is the HAP accessory category identifier.
type Category uint16

// Accessory categories.
const (
	CategoryOther              Category = 1
	CategoryBridge             Category = 2
	CategoryFan                Category = 3
	CategoryGarageDoorOpener   Category = 4
	CategoryLightbulb          Category = 5
	CategoryDoorLock           Category = 6
	CategoryOutlet             Category = 7
	CategorySwitch             Category = 8
	CategoryThermostat         Category = 9
	CategorySensor             Category = 10
	CategorySecuritySystem     Category = 11
	CategoryDoor               Category = 12
	CategoryWindow             Category = 13
	CategoryWindowCovering     Category = 14
	CategoryProgrammableSwitch Category = 15
	CategoryIPCamera           Category = 17
	CategoryAirPurifier        Category = 19
	CategoryHeater             Category = 20
	CategoryAirConditioner     Category = 21
	CategoryHumidifier         Category = 22
	CategoryDehumidifier       Category = 23
	CategorySprinkler          Category = 28
	CategoryFaucet             Category = 29
	CategoryShowerHead         Category = 30
	CategoryTelevision         Category = 31
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryOther:
		return "Other"
	case CategoryBridge:
		return "Bridge"
	case CategoryFan:
		return "Fan"
	case CategoryGarageDoorOpener:
		return "GarageDoorOpener"
	case CategoryLightbulb:
		return "Lightbulb"
	case CategoryDoorLock:
		return "DoorLock"
	case CategoryOutlet:
		return "Outlet"
	case CategorySwitch:
		return "Switch"
	case CategoryThermostat:
		return "Thermostat"
	case CategorySensor:
		return "Sensor"
	case CategorySecuritySystem:
		return "SecuritySystem"
	case CategoryDoor:
		return "Door"
	case CategoryWindow:
		return "Window"
	case CategoryWindowCovering:
		return "WindowCovering"
	case CategoryProgrammableSwitch:
		return "ProgrammableSwitch"
	case CategoryIPCamera:
		return "IPCamera"
	case CategoryAirPurifier:
		return "AirPurifier"
	case CategoryHeater:
		return "Heater"
	case CategoryAirConditioner:
		return "AirConditioner"
	case CategoryHumidifier:
		return "Humidifier"
	case CategoryDehumidifier:
		return "Dehumidifier"
	case CategorySprinkler:
		return "Sprinkler"
	case CategoryFaucet:
		return "Faucet"
	case CategoryShowerHead:
		return "ShowerHead"
	case CategoryTelevision:
		return "Television"
	default:
		return "Unknown"
	}
}
