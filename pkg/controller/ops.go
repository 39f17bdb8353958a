package controller

import (
	"context"
	"fmt"
	"sort"

	"github.com/backkem/hap/pkg/accessory"
	"github.com/backkem/hap/pkg/catalog"
	"github.com/backkem/hap/pkg/transport"
	"go.uber.org/multierr"
)

// target is the device an operation addresses and, for logical IDs, the
// logical device that must own every characteristic.
func (c *Controller) target(ctx context.Context, id string) (*Device, transport.Session, *LogicalDevice, error) {
	dev, aid, err := c.resolve(id)
	if err != nil {
		return nil, nil, nil, err
	}
	sess, err := c.sessionFor(ctx, dev)
	if err != nil {
		return nil, nil, nil, err
	}
	if aid == 0 {
		return dev, sess, nil, nil
	}
	l := dev.logicalByAID(aid)
	if l == nil || l.id != normalizeID(id) {
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return dev, sess, l, nil
}

func checkOwned(l *LogicalDevice, ids []accessory.ID) error {
	if l == nil {
		return nil
	}
	for _, id := range ids {
		if err := l.owns(id); err != nil {
			return err
		}
	}
	return nil
}

// Read reads characteristics of a device or logical device, connecting
// first when needed.
func (c *Controller) Read(ctx context.Context, id string, ids []accessory.ID) ([]accessory.Value, error) {
	_, sess, l, err := c.target(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwned(l, ids); err != nil {
		return nil, err
	}
	return sess.GetCharacteristics(ctx, ids)
}

// Write writes characteristics of a device or logical device. Values are
// coerced against the characteristic metadata; an uncoercible value fails
// the call before anything is sent.
func (c *Controller) Write(ctx context.Context, id string, values map[accessory.ID]any) error {
	_, sess, l, err := c.target(ctx, id)
	if err != nil {
		return err
	}
	ids := make([]accessory.ID, 0, len(values))
	for cid := range values {
		ids = append(ids, cid)
	}
	if err := checkOwned(l, ids); err != nil {
		return err
	}
	return sess.SetCharacteristics(ctx, values)
}

// Subscribe enables notifications for ids. Changes are delivered to
// Config.OnEvent as EventValue until Unsubscribe or Disconnect.
func (c *Controller) Subscribe(ctx context.Context, id string, ids []accessory.ID) error {
	dev, sess, l, err := c.target(ctx, id)
	if err != nil {
		return err
	}
	if err := checkOwned(l, ids); err != nil {
		return err
	}
	sub, err := sess.Subscribe(ctx, ids)
	if err != nil {
		return err
	}

	c.mu.RLock()
	closed := c.closed
	if !closed {
		c.forwarders.Add(1)
	}
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	go c.forward(dev, sub)
	return nil
}

// Unsubscribe disables notifications for ids.
func (c *Controller) Unsubscribe(ctx context.Context, id string, ids []accessory.ID) error {
	_, sess, l, err := c.target(ctx, id)
	if err != nil {
		return err
	}
	if err := checkOwned(l, ids); err != nil {
		return err
	}
	return sess.Unsubscribe(ctx, ids)
}

func (c *Controller) forward(dev *Device, sub *transport.Subscription) {
	defer c.forwarders.Done()
	for ev := range sub.Events() {
		c.deliver(dev, ev)
	}
	for err := range sub.Errors() {
		if c.log != nil {
			c.log.Warnf("subscription on %s ended: %v", dev.id, err)
		}
		c.emit(Event{Kind: EventError, DeviceID: dev.id, Err: err})
	}
}

// deliver emits a value event, interpreted through the catalog when the
// characteristic belongs to a logical device property. A change of hue,
// saturation or brightness also emits the composite color.
func (c *Controller) deliver(dev *Device, ev transport.Event) {
	out := Event{Kind: EventValue, DeviceID: dev.id, ID: ev.ID, Value: ev.Value, Raw: ev.Value}
	l := dev.logicalByAID(ev.ID.AID)
	if l == nil {
		c.emit(out)
		return
	}
	out.Logical = l
	if p, ok := l.desc.PropertyByID(ev.ID); ok {
		out.Property = p.Name
		out.Value = p.Entry.Interpret(ev.Value)
	}
	feedsColor := l.remember(ev.ID, ev.Value)
	c.emit(out)

	if !feedsColor {
		return
	}
	if rgb, ok := l.color(); ok {
		c.emit(Event{Kind: EventValue, DeviceID: dev.id, Logical: l, Property: "color", Value: rgb})
	}
}

// resolveLogical returns the logical device with the given ID, connecting
// its device first when needed.
func (c *Controller) resolveLogical(ctx context.Context, id string) (*LogicalDevice, transport.Session, error) {
	dev, _, err := c.resolve(id)
	if err != nil {
		return nil, nil, err
	}
	sess, err := c.sessionFor(ctx, dev)
	if err != nil {
		return nil, nil, err
	}
	l := dev.logicalByID(normalizeID(id))
	if l == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return l, sess, nil
}

// Properties reads every visible property of a logical device and returns
// the interpreted values by name. The color property is derived from hue,
// saturation and brightness.
func (c *Controller) Properties(ctx context.Context, id string) (map[string]any, error) {
	l, sess, err := c.resolveLogical(ctx, id)
	if err != nil {
		return nil, err
	}
	db := l.owner.Accessories()

	var ids []accessory.ID
	for _, p := range l.desc.Properties {
		if p.ID == (accessory.ID{}) {
			continue
		}
		if db != nil {
			if ch, err := db.Find(p.ID); err == nil && !ch.Readable() {
				continue
			}
		}
		ids = append(ids, p.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].IID < ids[j].IID })

	values, err := sess.GetCharacteristics(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(values))
	var errs error
	for _, v := range values {
		if err := v.Err(); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		l.remember(v.ID, v.Value)
		p, ok := l.desc.PropertyByID(v.ID)
		if !ok || p.Hidden {
			continue
		}
		out[p.Name] = p.Entry.Interpret(v.Value)
	}
	if rgb, ok := l.color(); ok {
		out["color"] = rgb
	}
	if len(out) == 0 && errs != nil {
		return nil, errs
	}
	if errs != nil && c.log != nil {
		c.log.Debugf("reading properties of %s: %v", id, errs)
	}
	return out, nil
}

// SetProperty writes one named property of a logical device. The value is
// given in the exposed form: an enum label, kelvin for color temperature
// or "#rrggbb" for color.
func (c *Controller) SetProperty(ctx context.Context, id, name string, value any) error {
	l, sess, err := c.resolveLogical(ctx, id)
	if err != nil {
		return err
	}

	if name == "color" && l.desc.Color != nil {
		rgb, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: color %v", catalog.ErrInvalidValue, value)
		}
		values, err := l.desc.Color.Values(rgb)
		if err != nil {
			return err
		}
		return sess.SetCharacteristics(ctx, values)
	}

	p, ok := l.desc.Property(name)
	if !ok || p.ID == (accessory.ID{}) {
		return fmt.Errorf("%w: %q on %s", ErrUnknownProperty, name, id)
	}
	if p.ReadOnly {
		return fmt.Errorf("%w: %q on %s", ErrReadOnly, name, id)
	}
	raw, err := p.Entry.Encode(value)
	if err != nil {
		return err
	}
	return sess.SetCharacteristics(ctx, map[accessory.ID]any{p.ID: raw})
}

// Invoke triggers a write-only action such as identify.
func (c *Controller) Invoke(ctx context.Context, id, action string) error {
	l, sess, err := c.resolveLogical(ctx, id)
	if err != nil {
		return err
	}
	for _, a := range l.desc.Actions {
		if a.Name == action {
			return sess.SetCharacteristics(ctx, map[accessory.ID]any{a.ID: true})
		}
	}
	return fmt.Errorf("%w: action %q on %s", ErrUnknownProperty, action, id)
}

// Watch subscribes to every notifying property of a logical device.
func (c *Controller) Watch(ctx context.Context, id string) error {
	l, _, err := c.resolveLogical(ctx, id)
	if err != nil {
		return err
	}
	db := l.owner.Accessories()
	var ids []accessory.ID
	for _, p := range l.desc.Properties {
		if p.ID == (accessory.ID{}) || db == nil {
			continue
		}
		if ch, err := db.Find(p.ID); err == nil && ch.Notifies() {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return c.Subscribe(ctx, id, ids)
}
