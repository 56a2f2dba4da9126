package allowlist

import (
	"net/netip"
	"strconv"
	"strings"
)

// MatchIP reports whether addr matches any entry. Entries without a slash are
// exact addresses; entries with one are CIDR ranges. Malformed entries never
// match.
func MatchIP(addr netip.Addr, entries []string) bool {
	addr = addr.Unmap()
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			if ip, err := netip.ParseAddr(e); err == nil && ip.WithZone("").Unmap() == addr {
				return true
			}
			continue
		}
		if cidrContains(e, addr) {
			return true
		}
	}
	return false
}

// cidrContains compares the first bits of the network and the address: whole
// bytes directly, then the remaining high bits of the next byte under a mask.
// A prefix length outside 0-32 (IPv4) or 0-128 (IPv6) is a non-match, as is
// an address family mismatch.
func cidrContains(cidr string, addr netip.Addr) bool {
	netStr, bitsStr, _ := strings.Cut(cidr, "/")
	network, err := netip.ParseAddr(strings.TrimSpace(netStr))
	if err != nil {
		return false
	}
	network = network.WithZone("").Unmap()
	bits, err := strconv.Atoi(strings.TrimSpace(bitsStr))
	if err != nil || bits < 0 || bits > network.BitLen() {
		return false
	}
	if network.Is4() != addr.Is4() {
		return false
	}

	n := network.AsSlice()
	a := addr.AsSlice()

	full := bits / 8
	for i := 0; i < full; i++ {
		if n[i] != a[i] {
			return false
		}
	}
	rem := bits % 8
	if rem == 0 {
		return true
	}
	mask := byte(0xff << (8 - rem))
	return n[full]&mask == a[full]&mask
}

// ParseEntries splits allowlist text on newlines, commas, and whitespace.
func ParseEntries(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\r' || r == '\t'
	})
}
