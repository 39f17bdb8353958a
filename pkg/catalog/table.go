package catalog

import "github.com/backkem/hap/pkg/accessory"

type scopeKey struct {
	service, char accessory.Type
}

var serviceTable = map[accessory.Type]ServiceEntry{
	ServiceAccessoryInformation: {Label: "accessoryInformation"},
	ServiceLightbulb:            {Label: "lightbulb", Capabilities: []string{"Light", "OnOffSwitch"}},
	ServiceOutlet:               {Label: "outlet", Capabilities: []string{"SmartPlug", "OnOffSwitch"}},
	ServiceSwitch:               {Label: "switch", Capabilities: []string{"OnOffSwitch"}},
	ServiceThermostat:           {Label: "thermostat", Capabilities: []string{"Thermostat", "TemperatureSensor"}},
	ServiceTemperatureSensor:    {Label: "temperatureSensor", Capabilities: []string{"TemperatureSensor"}},
	ServiceHumiditySensor:       {Label: "humiditySensor", Capabilities: []string{"HumiditySensor"}},
	ServiceLightSensor:          {Label: "lightSensor", Capabilities: []string{"MultiLevelSensor"}},
	ServiceMotionSensor:         {Label: "motionSensor", Capabilities: []string{"MotionSensor"}},
	ServiceOccupancySensor:      {Label: "occupancySensor", Capabilities: []string{"MotionSensor"}},
	ServiceContactSensor:        {Label: "contactSensor", Capabilities: []string{"DoorSensor"}},
	ServiceLeakSensor:           {Label: "leakSensor", Capabilities: []string{"LeakSensor"}},
	ServiceSmokeSensor:          {Label: "smokeSensor", Capabilities: []string{"SmokeAlarm"}},
	ServiceLockMechanism:        {Label: "lock", Capabilities: []string{"Lock"}},
	ServiceSecuritySystem:       {Label: "securitySystem", Capabilities: []string{"Alarm"}},
	ServiceProgrammableSwitch:   {Label: "button", Capabilities: []string{"PushButton"}},
	ServiceGarageDoorOpener:     {Label: "garageDoor"},
	ServiceWindowCovering:       {Label: "windowCovering"},
	ServiceFan:                  {Label: "fan"},
	ServiceFanV2:                {Label: "fan"},
	ServiceBattery:              {Label: "battery"},
}

var (
	openClosed = map[int64]string{0: "open", 1: "closed", 2: "opening", 3: "closing", 4: "stopped"}
	detected   = map[int64]string{0: "clear", 1: "detected"}
	heatCool   = map[int64]string{0: "off", 1: "heat", 2: "cool", 3: "auto"}
	lockState  = map[int64]string{0: "unlocked", 1: "locked", 2: "jammed", 3: "unknown"}
	alarmState = map[int64]string{0: "stay", 1: "away", 2: "night", 3: "disarmed", 4: "triggered"}
)

var charTable = map[accessory.Type]Entry{
	CharOn:                         {Label: "on", Type: TypeBoolean, Tags: []string{"OnOffProperty"}},
	CharBrightness:                 {Label: "brightness", Type: TypeInteger, Unit: "percent", Min: f64(0), Max: f64(100), Tags: []string{"LevelProperty"}},
	CharHue:                        {Label: "hue", Type: TypeNumber, Unit: "arcdegrees", Min: f64(0), Max: f64(360)},
	CharSaturation:                 {Label: "saturation", Type: TypeNumber, Unit: "percent", Min: f64(0), Max: f64(100)},
	CharColorTemperature:           {Label: "colorTemperature", Type: TypeInteger, Unit: "kelvin", Min: f64(2000), Max: f64(7143), Convert: ConvertMiredKelvin, Tags: []string{"ColorTemperatureProperty"}},
	CharCurrentTemperature:         {Label: "temperature", Type: TypeNumber, Unit: "degree celsius", Tags: []string{"TemperatureProperty"}},
	CharTargetTemperature:          {Label: "targetTemperature", Type: TypeNumber, Unit: "degree celsius", Min: f64(10), Max: f64(38), Step: f64(0.1), Tags: []string{"TargetTemperatureProperty"}},
	CharCurrentRelativeHumidity:    {Label: "humidity", Type: TypeNumber, Unit: "percent", Min: f64(0), Max: f64(100), Tags: []string{"HumidityProperty"}},
	CharCurrentAmbientLightLevel:   {Label: "illuminance", Type: TypeNumber, Unit: "lux", Tags: []string{"LevelProperty"}},
	CharMotionDetected:             {Label: "motion", Type: TypeBoolean, Tags: []string{"MotionProperty"}},
	CharOccupancyDetected:          {Label: "occupancy", Type: TypeString, Enum: map[int64]string{0: "unoccupied", 1: "occupied"}, Tags: []string{"MotionProperty"}},
	CharContactSensorState:         {Label: "contact", Type: TypeString, Enum: map[int64]string{0: "closed", 1: "open"}, Tags: []string{"OpenProperty"}},
	CharLeakDetected:               {Label: "leak", Type: TypeString, Enum: detected, Tags: []string{"LeakProperty"}},
	CharSmokeDetected:              {Label: "smoke", Type: TypeString, Enum: detected, Tags: []string{"AlarmProperty"}},
	CharOutletInUse:                {Label: "inUse", Type: TypeBoolean},
	CharBatteryLevel:               {Label: "battery", Type: TypeInteger, Unit: "percent", Min: f64(0), Max: f64(100), Tags: []string{"LevelProperty"}},
	CharStatusLowBattery:           {Label: "lowBattery", Type: TypeString, Enum: map[int64]string{0: "normal", 1: "low"}},
	CharCurrentHeatingCoolingState: {Label: "heatingCooling", Type: TypeString, Enum: map[int64]string{0: "off", 1: "heating", 2: "cooling"}, Tags: []string{"HeatingCoolingProperty"}},
	CharTargetHeatingCoolingState:  {Label: "thermostatMode", Type: TypeString, Enum: heatCool, Tags: []string{"ThermostatModeProperty"}},
	CharTemperatureDisplayUnits:    {Label: "temperatureUnits", Type: TypeString, Enum: map[int64]string{0: "celsius", 1: "fahrenheit"}},
	CharLockCurrentState:           {Label: "locked", Type: TypeString, Enum: lockState, Tags: []string{"LockedProperty"}},
	CharLockTargetState:            {Label: "targetLocked", Type: TypeString, Enum: map[int64]string{0: "unlocked", 1: "locked"}, Tags: []string{"TargetLockedProperty"}},
	CharCurrentDoorState:           {Label: "doorState", Type: TypeString, Enum: openClosed},
	CharTargetDoorState:            {Label: "targetDoorState", Type: TypeString, Enum: map[int64]string{0: "open", 1: "closed"}},
	CharCurrentPosition:            {Label: "position", Type: TypeInteger, Unit: "percent", Min: f64(0), Max: f64(100), Tags: []string{"LevelProperty"}},
	CharTargetPosition:             {Label: "targetPosition", Type: TypeInteger, Unit: "percent", Min: f64(0), Max: f64(100)},
	CharPositionState:              {Label: "positionState", Type: TypeString, Enum: map[int64]string{0: "decreasing", 1: "increasing", 2: "stopped"}},
	CharSecuritySystemCurrentState: {Label: "alarmState", Type: TypeString, Enum: alarmState, Tags: []string{"AlarmProperty"}},
	CharSecuritySystemTargetState:  {Label: "targetAlarmState", Type: TypeString, Enum: map[int64]string{0: "stay", 1: "away", 2: "night", 3: "disarmed"}},
	CharProgrammableSwitchEvent:    {Label: "button", Type: TypeString, Enum: map[int64]string{0: "single", 1: "double", 2: "long"}, Tags: []string{"PushedProperty"}},
	CharActive:                     {Label: "active", Type: TypeString, Enum: map[int64]string{0: "inactive", 1: "active"}},
	CharRotationSpeed:              {Label: "speed", Type: TypeNumber, Unit: "percent", Min: f64(0), Max: f64(100), Tags: []string{"LevelProperty"}},
	CharIdentify:                   {Label: "identify", Type: TypeBoolean, Action: &Action{Name: "identify", Title: "Identify"}},
}

// Entries that read differently inside a particular service.
var scopedTable = map[scopeKey]Entry{
	{ServiceLightbulb, CharBrightness}:          {Label: "level", Type: TypeInteger, Unit: "percent", Min: f64(0), Max: f64(100), Tags: []string{"BrightnessProperty"}},
	{ServiceThermostat, CharCurrentTemperature}: {Label: "temperature", Type: TypeNumber, Unit: "degree celsius", Min: f64(0), Max: f64(100), Step: f64(0.1), Tags: []string{"TemperatureProperty"}},
	{ServiceFan, CharActive}:                    {Label: "on", Type: TypeString, Enum: map[int64]string{0: "off", 1: "on"}, Tags: []string{"OnOffProperty"}},
	{ServiceFanV2, CharActive}:                  {Label: "on", Type: TypeString, Enum: map[int64]string{0: "off", 1: "on"}, Tags: []string{"OnOffProperty"}},
}
