package dhcpsrv

import (
	"net"
	"net/netip"
	"slices"
	"time"
)

// Lease is a single address binding.  The HWAddr and ClientID fields are only
// set on DHCPv4 leases, the DUID and IAID fields only on DHCPv6 ones.
type Lease struct {
	// IP is the IP address leased to the client.  It must not be empty.
	IP netip.Addr

	// Expiry is the expiration time of the lease.
	Expiry time.Time

	// Hostname is the hostname reported by the client.  It may be empty.
	Hostname string

	// HWAddr is the physical hardware (MAC) address of a DHCPv4 client.
	HWAddr net.HardwareAddr

	// ClientID is the client-identifier option value, when the DHCPv4 client
	// sent one and it is used as the identity key instead of HWAddr.
	ClientID []byte

	// DUID is the unique identifier of a DHCPv6 client.
	DUID []byte

	// IAID is the identity association the lease belongs to within DUID.
	IAID uint32
}

// Clone returns a deep copy of l.
func (l *Lease) Clone() (clone *Lease) {
	if l == nil {
		return nil
	}

	return &Lease{
		IP:       l.IP,
		Expiry:   l.Expiry,
		Hostname: l.Hostname,
		HWAddr:   slices.Clone(l.HWAddr),
		ClientID: slices.Clone(l.ClientID),
		DUID:     slices.Clone(l.DUID),
		IAID:     l.IAID,
	}
}

// isExpired returns true if l has expired at now.
func (l *Lease) isExpired(now time.Time) (ok bool) {
	return !l.Expiry.After(now)
}
