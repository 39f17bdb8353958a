package discovery

import (
	"net"
	"sort"
)

// SortIPsByPreference orders addresses for connecting to an IP accessory:
//  1. IPv4 addresses
//  2. IPv6 global unicast
//  3. IPv6 unique local (fc00::/7)
//  4. IPv6 link-local, which mDNS reports without a zone
//  5. loopback and anything else
//
// The input slice is not modified.
func SortIPsByPreference(ips []net.IP) []net.IP {
	if len(ips) <= 1 {
		return ips
	}
	sorted := make([]net.IP, len(ips))
	copy(sorted, ips)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ipPriority(sorted[i]) < ipPriority(sorted[j])
	})
	return sorted
}

// ipPriority returns the priority of an IP address (lower is better).
func ipPriority(ip net.IP) int {
	if ip.To16() == nil {
		return 99
	}
	if ip.IsLoopback() {
		return 80
	}
	if ip.To4() != nil {
		return 0
	}
	switch {
	case isUniqueLocal(ip):
		return 2
	case ip.IsGlobalUnicast():
		return 1
	case ip.IsLinkLocalUnicast():
		return 3
	case ip.IsMulticast():
		return 90
	}
	return 10
}

// isUniqueLocal reports whether ip is in fc00::/7.
func isUniqueLocal(ip net.IP) bool {
	ip = ip.To16()
	return ip != nil && ip.To4() == nil && (ip[0] == 0xfc || ip[0] == 0xfd)
}
