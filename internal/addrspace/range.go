// Package addrspace contains the address arithmetic shared by the DHCPv4 and
// DHCPv6 parts of the server: inclusive address ranges with offset math and
// netmask helpers.  All of it works
// over [netip.Addr] and is parameterised over the address family only by the
// width of the addresses themselves.
package addrspace

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
)

// Range is an inclusive range of IP addresses.  A zero Range doesn't contain
// any IP addresses.
type Range struct {
	start netip.Addr
	end   netip.Addr
}

// MaxRangeLen is the maximum offset of the end of an IP range from its start,
// so that every offset fits into 32 bits.
const MaxRangeLen = math.MaxUint32

// NewRange creates a new IP address range.  start must be less than or equal
// to end.  The offset of end from start must not exceed [MaxRangeLen].
func NewRange(start, end netip.Addr) (r Range, err error) {
	defer func() { err = errors.Annotate(err, "invalid ip range: %w") }()

	switch false {
	case start.IsValid() && end.IsValid():
		return Range{}, errors.Error("start and end must be valid addresses")
	case start.Is4() == end.Is4():
		return Range{}, fmt.Errorf("%s and %s must be within the same address family", start, end)
	case !end.Less(start):
		return Range{}, fmt.Errorf("start %s is greater than end %s", start, end)
	default:
		diff := (&big.Int{}).Sub(
			(&big.Int{}).SetBytes(end.AsSlice()),
			(&big.Int{}).SetBytes(start.AsSlice()),
		)

		if !diff.IsUint64() || diff.Uint64() > MaxRangeLen {
			return Range{}, fmt.Errorf("range length must be within %d", uint32(MaxRangeLen))
		}
	}

	return Range{
		start: start,
		end:   end,
	}, nil
}

// Start returns the first address of r.
func (r Range) Start() (ip netip.Addr) { return r.start }

// End returns the last address of r.
func (r Range) End() (ip netip.Addr) { return r.end }

// Contains returns true if r contains ip.
func (r Range) Contains(ip netip.Addr) (ok bool) {
	// Assume that the end was checked to be within the same address family as
	// the start during construction.
	return r.start.Is4() == ip.Is4() && !ip.Less(r.start) && !r.end.Less(ip)
}

// Offset returns the offset of ip from the beginning of r.  It returns 0 and
// false if ip is not in r.
func (r Range) Offset(ip netip.Addr) (offset uint64, ok bool) {
	if !r.Contains(ip) {
		return 0, false
	}

	startData, ipData := r.start.As16(), ip.As16()
	be := binary.BigEndian

	// Assume that the range length was checked against MaxRangeLen during
	// construction.
	return be.Uint64(ipData[8:]) - be.Uint64(startData[8:]), true
}

// Find finds the first IP address in r for which p returns true.  It returns
// an empty [netip.Addr] if there are no addresses that satisfy p.
func (r Range) Find(p func(ip netip.Addr) (ok bool)) (ip netip.Addr) {
	for ip = r.start; !r.end.Less(ip); ip = ip.Next() {
		if p(ip) {
			return ip
		}
	}

	return netip.Addr{}
}

// String implements the [fmt.Stringer] interface for Range.
func (r Range) String() (s string) {
	return fmt.Sprintf("%s-%s", r.start, r.end)
}
