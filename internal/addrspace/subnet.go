package addrspace

import (
	"fmt"
	"net"
	"net/netip"
)

// MaskBits returns the number of leading one bits in the IPv4 netmask m.  It
// returns an error if m is not a valid contiguous IPv4 mask.
func MaskBits(m netip.Addr) (bits int, err error) {
	if !m.Is4() {
		return 0, fmt.Errorf("netmask %s: must be a valid ipv4", m)
	}

	bits, total := net.IPMask(m.AsSlice()).Size()
	if total == 0 {
		return 0, fmt.Errorf("netmask %s: must be contiguous", m)
	}

	return bits, nil
}

// Subnet returns the subnet of addr under the IPv4 netmask m, that is the
// prefix of the masked length containing addr.
func Subnet(addr, m netip.Addr) (subnet netip.Prefix, err error) {
	bits, err := MaskBits(m)
	if err != nil {
		return netip.Prefix{}, err
	}

	p, err := addr.Prefix(bits)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("subnet of %s: %w", addr, err)
	}

	return p, nil
}
