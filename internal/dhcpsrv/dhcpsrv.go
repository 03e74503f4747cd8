// Package dhcpsrv contains the stateful DHCPv4 and DHCPv6 server cores: the
// validated configurations, the lease table and address pool, and the
// per-message-type state machines.
//
// The cores own no sockets and no clock.  Each inbound datagram is handed to
// [ServerV4.Process] or [ServerV6.Process], which returns the serialized
// responses together with a destination hint; the current time comes from the
// injected [timeutil.Clock].  Lease expiry is pull-based through the Sweep
// methods.  Both servers serialize calls internally, so a transport may call
// them from a single funnel goroutine or shard as it sees fit.
package dhcpsrv

import (
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
)

// Common server errors.
const (
	// ErrNoAddrsAvail is returned or encoded into responses when the address
	// pool has no free addresses left.
	ErrNoAddrsAvail errors.Error = "no addresses available to lease"

	// errNilConfig is returned when a nil config met.
	errNilConfig errors.Error = "config is nil"
)

// Response is a single serialized response datagram together with the
// destination hint for the transport.  The core only states the intent; the
// transport owns the socket and decides how to honor it.
type Response struct {
	// Peer is the suggested destination.  It is ignored when Broadcast is
	// true.
	Peer netip.AddrPort

	// Data is the wire encoding of the response message.
	Data []byte

	// Broadcast reports that the response must be delivered by broadcast,
	// because the client cannot yet receive unicast datagrams.
	Broadcast bool
}

// clientKey is the identity key of a client within a lease table: for DHCPv4
// the client-identifier option value or the hardware address, for DHCPv6 the
// DUID.  The raw bytes are kept as a string so that the key is comparable.
type clientKey string
