package catalog

import "github.com/backkem/hap/pkg/accessory"

// Service types.
var (
	ServiceAccessoryInformation = accessory.ShortType(0x3E)
	ServiceFan                  = accessory.ShortType(0x40)
	ServiceGarageDoorOpener     = accessory.ShortType(0x41)
	ServiceLightbulb            = accessory.ShortType(0x43)
	ServiceLockMechanism        = accessory.ShortType(0x45)
	ServiceOutlet               = accessory.ShortType(0x47)
	ServiceSwitch               = accessory.ShortType(0x49)
	ServiceThermostat           = accessory.ShortType(0x4A)
	ServiceSecuritySystem       = accessory.ShortType(0x7E)
	ServiceContactSensor        = accessory.ShortType(0x80)
	ServiceHumiditySensor       = accessory.ShortType(0x82)
	ServiceLeakSensor           = accessory.ShortType(0x83)
	ServiceLightSensor          = accessory.ShortType(0x84)
	ServiceMotionSensor         = accessory.ShortType(0x85)
	ServiceOccupancySensor      = accessory.ShortType(0x86)
	ServiceSmokeSensor          = accessory.ShortType(0x87)
	ServiceProgrammableSwitch   = accessory.ShortType(0x89)
	ServiceTemperatureSensor    = accessory.ShortType(0x8A)
	ServiceWindowCovering       = accessory.ShortType(0x8C)
	ServiceBattery              = accessory.ShortType(0x96)
	ServiceFanV2                = accessory.ShortType(0xB7)
)

// Characteristic types.
var (
	CharBrightness                 = accessory.ShortType(0x08)
	CharCurrentDoorState           = accessory.ShortType(0x0E)
	CharCurrentHeatingCoolingState = accessory.ShortType(0x0F)
	CharCurrentRelativeHumidity    = accessory.ShortType(0x10)
	CharCurrentTemperature         = accessory.ShortType(0x11)
	CharHue                        = accessory.ShortType(0x13)
	CharIdentify                   = accessory.ShortType(0x14)
	CharLockCurrentState           = accessory.ShortType(0x1D)
	CharLockTargetState            = accessory.ShortType(0x1E)
	CharManufacturer               = accessory.ShortType(0x20)
	CharModel                      = accessory.ShortType(0x21)
	CharMotionDetected             = accessory.ShortType(0x22)
	CharName                       = accessory.ShortType(0x23)
	CharOn                         = accessory.ShortType(0x25)
	CharOutletInUse                = accessory.ShortType(0x26)
	CharRotationSpeed              = accessory.ShortType(0x29)
	CharSaturation                 = accessory.ShortType(0x2F)
	CharSerialNumber               = accessory.ShortType(0x30)
	CharTargetDoorState            = accessory.ShortType(0x32)
	CharTargetHeatingCoolingState  = accessory.ShortType(0x33)
	CharTargetTemperature          = accessory.ShortType(0x35)
	CharTemperatureDisplayUnits    = accessory.ShortType(0x36)
	CharFirmwareRevision           = accessory.ShortType(0x52)
	CharSecuritySystemCurrentState = accessory.ShortType(0x66)
	CharSecuritySystemTargetState  = accessory.ShortType(0x67)
	CharBatteryLevel               = accessory.ShortType(0x68)
	CharContactSensorState         = accessory.ShortType(0x6A)
	CharCurrentAmbientLightLevel   = accessory.ShortType(0x6B)
	CharCurrentPosition            = accessory.ShortType(0x6D)
	CharLeakDetected               = accessory.ShortType(0x70)
	CharOccupancyDetected          = accessory.ShortType(0x71)
	CharPositionState              = accessory.ShortType(0x72)
	CharProgrammableSwitchEvent    = accessory.ShortType(0x73)
	CharSmokeDetected              = accessory.ShortType(0x76)
	CharStatusLowBattery           = accessory.ShortType(0x79)
	CharTargetPosition             = accessory.ShortType(0x7C)
	CharActive                     = accessory.ShortType(0xB0)
	CharColorTemperature           = accessory.ShortType(0xCE)
)
