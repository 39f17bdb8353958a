package discovery

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/backkem/hap/pkg/hap"
	"github.com/grandcat/zeroconf"
)

// ServiceHAP is the DNS-SD service type of IP accessories.
const ServiceHAP = "_hap._tcp"

// DefaultDomain is the mDNS domain.
const DefaultDomain = "local."

// TXT record keys of _hap._tcp.
const (
	TXTKeyConfigNumber    = "c#"
	TXTKeyFeatureFlags    = "ff"
	TXTKeyDeviceID        = "id"
	TXTKeyModel           = "md"
	TXTKeyProtocolVersion = "pv"
	TXTKeyStateNumber     = "s#"
	TXTKeyStatusFlags     = "sf"
	TXTKeyCategory        = "ci"
)

var deviceIDPattern = regexp.MustCompile(`^[0-9A-Fa-f]{2}(:[0-9A-Fa-f]{2}){5}$`)

// NormalizeDeviceID validates an accessory device ID and returns it in
// upper case.
func NormalizeDeviceID(id string) (string, error) {
	if !deviceIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDeviceID, id)
	}
	return strings.ToUpper(id), nil
}

// ParseTXT splits TXT strings into a key/value map. Keys are lower-cased;
// a string without "=" is a key with an empty value.
func ParseTXT(records []string) map[string]string {
	m := make(map[string]string, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		if k == "" {
			continue
		}
		m[strings.ToLower(k)] = v
	}
	return m
}

func txtUint(txt map[string]string, key string, bits int, required bool) (uint64, error) {
	s, ok := txt[key]
	if !ok {
		if required {
			return 0, fmt.Errorf("%w: missing %s", ErrInvalidTXTRecord, key)
		}
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, key, s)
	}
	return n, nil
}

// DescriptorFromTXT builds an IP descriptor from parsed TXT keys. The id
// and c# keys are required; host, port and name are left to the caller.
func DescriptorFromTXT(txt map[string]string) (*hap.AccessoryDescriptor, error) {
	id, ok := txt[TXTKeyDeviceID]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidTXTRecord, TXTKeyDeviceID)
	}
	id, err := NormalizeDeviceID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTXTRecord, err)
	}

	d := &hap.AccessoryDescriptor{
		Transport:       hap.TransportIP,
		DeviceID:        id,
		Model:           txt[TXTKeyModel],
		ProtocolVersion: txt[TXTKeyProtocolVersion],
	}
	cn, err := txtUint(txt, TXTKeyConfigNumber, 32, true)
	if err != nil {
		return nil, err
	}
	d.ConfigNumber = uint32(cn)

	sn, err := txtUint(txt, TXTKeyStateNumber, 32, false)
	if err != nil {
		return nil, err
	}
	d.StateNumber = uint32(sn)

	ff, err := txtUint(txt, TXTKeyFeatureFlags, 8, false)
	if err != nil {
		return nil, err
	}
	d.FeatureFlags = uint8(ff)

	sf, err := txtUint(txt, TXTKeyStatusFlags, 8, false)
	if err != nil {
		return nil, err
	}
	d.Status = hap.StatusFlags(sf)

	ci, err := txtUint(txt, TXTKeyCategory, 16, false)
	if err != nil {
		return nil, err
	}
	d.Category = hap.Category(ci)
	return d, nil
}

// DescriptorFromEntry builds a descriptor from a resolved _hap._tcp entry.
// The host is the most preferred address.
func DescriptorFromEntry(entry *zeroconf.ServiceEntry) (*hap.AccessoryDescriptor, error) {
	d, err := DescriptorFromTXT(ParseTXT(entry.Text))
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	ips = append(ips, entry.AddrIPv4...)
	ips = append(ips, entry.AddrIPv6...)
	if ips = SortIPsByPreference(ips); len(ips) > 0 {
		d.Host = ips[0].String()
	} else {
		d.Host = strings.TrimSuffix(entry.HostName, ".")
	}
	d.Port = entry.Port
	d.Name = unescapeInstance(entry.Instance)
	return d, nil
}

// unescapeInstance undoes DNS-SD escaping such as "Desk\ Lamp".
func unescapeInstance(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
