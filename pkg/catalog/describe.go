package catalog

import (
	"fmt"
	"slices"

	"github.com/backkem/hap/pkg/accessory"
)

// Property is one characteristic exposed to users.
type Property struct {
	// Name is unique within a Description.
	Name string

	ID      accessory.ID
	Type    accessory.Type
	Service accessory.Type
	Entry   Entry

	// Value is the interpreted current value.
	Value any

	Unit           string
	Min, Max, Step *float64
	ReadOnly       bool

	// Hidden properties feed a composite such as Color and are not shown
	// on their own.
	Hidden bool
}

// ActionDesc is a write-only action backed by a characteristic.
type ActionDesc struct {
	Name  string
	Title string
	ID    accessory.ID
	Entry Entry
}

// Color addresses the three characteristics behind a color property.
type Color struct {
	Hue, Saturation, Brightness accessory.ID
}

// Description is what the catalog knows about one accessory.
type Description struct {
	// Identifying fields are empty when the accessory does not report them.
	Name             string
	Model            string
	Manufacturer     string
	SerialNumber     string
	FirmwareRevision string

	Capabilities []string
	Properties   []Property
	Actions      []ActionDesc

	// Color is set for lightbulbs with hue, saturation and brightness.
	Color *Color
}

// Property returns the property named name.
func (d *Description) Property(name string) (Property, bool) {
	for _, p := range d.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// PropertyByID returns the property backed by id.
func (d *Description) PropertyByID(id accessory.ID) (Property, bool) {
	for _, p := range d.Properties {
		if p.ID == id {
			return p, true
		}
	}
	return Property{}, false
}

// Describe maps acc onto catalog metadata. Characteristics without an entry
// are omitted.
func (c *Catalog) Describe(acc *accessory.Accessory) *Description {
	d := &Description{}
	names := map[string]bool{}

	for _, svc := range acc.Services {
		if svc.Type == ServiceAccessoryInformation {
			d.readInfo(svc)
		}
		if se, ok := c.Service(svc.Type); ok {
			for _, capability := range se.Capabilities {
				if !slices.Contains(d.Capabilities, capability) {
					d.Capabilities = append(d.Capabilities, capability)
				}
			}
		}

		for _, ch := range svc.Characteristics {
			e, ok := c.Lookup(svc.Type, ch.Type)
			if !ok {
				if c.log != nil {
					c.log.Tracef("no catalog entry for %s in %s", ch.Type, svc.Type)
				}
				continue
			}
			if e.Action != nil {
				d.Actions = append(d.Actions, ActionDesc{Name: e.Action.Name, Title: e.Action.Title, ID: ch.ID(), Entry: e})
				continue
			}
			if svc.Hidden || ch.Has(accessory.PermHidden) {
				continue
			}
			name := e.Label
			if names[name] {
				name = fmt.Sprintf("%s_%d", e.Label, ch.IID)
			}
			names[name] = true
			d.Properties = append(d.Properties, property(name, svc, ch, e))
		}
	}
	d.addColor()
	return d
}

func (d *Description) readInfo(svc *accessory.Service) {
	str := func(t accessory.Type) string {
		if ch := svc.Characteristic(t); ch != nil {
			if s, ok := ch.Value.(string); ok {
				return s
			}
		}
		return ""
	}
	d.Name = str(CharName)
	d.Model = str(CharModel)
	d.Manufacturer = str(CharManufacturer)
	d.SerialNumber = str(CharSerialNumber)
	d.FirmwareRevision = str(CharFirmwareRevision)
}

func property(name string, svc *accessory.Service, ch *accessory.Characteristic, e Entry) Property {
	p := Property{
		Name:     name,
		ID:       ch.ID(),
		Type:     ch.Type,
		Service:  svc.Type,
		Entry:    e,
		Value:    e.Interpret(ch.Value),
		Unit:     e.Unit,
		Min:      e.Min,
		Max:      e.Max,
		Step:     e.Step,
		ReadOnly: !ch.Writable(),
	}
	if p.Unit == "" {
		p.Unit = unitName(ch.Unit)
	}
	if e.Convert == ConvertNone && len(e.Enum) == 0 {
		if p.Min == nil {
			p.Min = ch.MinValue
		}
		if p.Max == nil {
			p.Max = ch.MaxValue
		}
		if p.Step == nil {
			p.Step = ch.MinStep
		}
	}
	return p
}

func unitName(u accessory.Unit) string {
	switch u {
	case accessory.UnitCelsius:
		return "degree celsius"
	case accessory.UnitPercentage:
		return "percent"
	case accessory.UnitArcDegrees:
		return "arcdegrees"
	case accessory.UnitLux:
		return "lux"
	case accessory.UnitSeconds:
		return "second"
	}
	return ""
}

// addColor folds hue, saturation and brightness of a lightbulb into one
// color property.
func (d *Description) addColor() {
	find := func(t accessory.Type) int {
		for i, p := range d.Properties {
			if p.Service == ServiceLightbulb && p.Type == t {
				return i
			}
		}
		return -1
	}
	h, s, v := find(CharHue), find(CharSaturation), find(CharBrightness)
	if h < 0 || s < 0 || v < 0 {
		return
	}
	d.Properties[h].Hidden = true
	d.Properties[s].Hidden = true
	d.Color = &Color{Hue: d.Properties[h].ID, Saturation: d.Properties[s].ID, Brightness: d.Properties[v].ID}
	d.Capabilities = append(d.Capabilities, "ColorControl")

	p := Property{
		Name:  "color",
		Entry: Entry{Label: "color", Type: TypeString, Tags: []string{"ColorProperty"}},
	}
	hv, hok := accessory.NormalizeValue(accessory.FormatFloat, d.Properties[h].Value).(float64)
	sv, sok := accessory.NormalizeValue(accessory.FormatFloat, d.Properties[s].Value).(float64)
	vv, vok := accessory.NormalizeValue(accessory.FormatFloat, d.Properties[v].Value).(float64)
	if hok && sok && vok {
		p.Value = HSVToRGB(hv, sv, vv)
	}
	d.Properties = append(d.Properties, p)
}

// Values returns the writes that set the color to rgb.
func (c *Color) Values(rgb string) (map[accessory.ID]any, error) {
	h, s, v, err := RGBToHSV(rgb)
	if err != nil {
		return nil, err
	}
	return map[accessory.ID]any{c.Hue: h, c.Saturation: s, c.Brightness: v}, nil
}
