package dhcpsrv

import (
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/addrspace"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg4"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg6"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
)

// MinLeaseDuration is the shortest configurable lease duration.
const MinLeaseDuration = time.Minute

// V4Config is the configuration of a DHCPv4 server core.
type V4Config struct {
	// Logger is used to log the DHCP events.  It must not be nil.
	Logger *slog.Logger

	// Clock is used to get current time.  It must not be nil.
	Clock timeutil.Clock

	// Subnet is the network address of the served subnet.  It must be a valid
	// IPv4 address.
	Subnet netip.Addr

	// Netmask is the subnet mask of the network.  It must be a valid
	// contiguous IPv4 mask.
	Netmask netip.Addr

	// GatewayIP is the IPv4 address of the network's gateway.  When set, it
	// is offered to clients as the default router and used as the server
	// identity.
	GatewayIP netip.Addr

	// RangeStart is the first address in the range to assign to DHCP clients.
	RangeStart netip.Addr

	// RangeEnd is the last address in the range to assign to DHCP clients.
	RangeEnd netip.Addr

	// DNSServers are the DNS resolvers offered to clients.
	DNSServers []netip.Addr

	// Options is the list of explicitly configured DHCP options to send to
	// clients in addition to the standard set.
	Options dhcpmsg4.Options

	// LeaseDuration is the TTL of a DHCP lease.  It must be at least
	// [MinLeaseDuration].
	LeaseDuration time.Duration
}

// type check
var _ validate.Interface = (*V4Config)(nil)

// Validate implements the [validate.Interface] interface for *V4Config.
func (c *V4Config) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotNil("Logger", c.Logger),
		validate.NotNilInterface("Clock", c.Clock),
	}

	if c.LeaseDuration < MinLeaseDuration {
		err = fmt.Errorf("LeaseDuration: %s: must be at least %s", c.LeaseDuration, MinLeaseDuration)
		errs = append(errs, err)
	}

	for i, dns := range c.DNSServers {
		if !dns.Is4() {
			errs = append(errs, fmt.Errorf("DNSServers: at index %d: %s: must be a valid ipv4", i, dns))
		}
	}

	errs = c.validateSubnet(errs)

	return errors.Join(errs...)
}

// validateSubnet appends the subnet and range validation errors to orig.
func (c *V4Config) validateSubnet(orig []error) (errs []error) {
	errs = orig

	if !c.Subnet.Is4() {
		return append(errs, fmt.Errorf("Subnet: %s: must be a valid ipv4", c.Subnet))
	}

	subnet, err := addrspace.Subnet(c.Subnet, c.Netmask)
	if err != nil {
		return append(errs, fmt.Errorf("Netmask: %w", err))
	}

	if c.GatewayIP.IsValid() && !subnet.Contains(c.GatewayIP) {
		errs = append(errs, fmt.Errorf("GatewayIP: %s is not within %s", c.GatewayIP, subnet))
	}

	switch {
	case !subnet.Contains(c.RangeStart):
		errs = append(errs, fmt.Errorf("RangeStart: %s is not within %s", c.RangeStart, subnet))
	case !subnet.Contains(c.RangeEnd):
		errs = append(errs, fmt.Errorf("RangeEnd: %s is not within %s", c.RangeEnd, subnet))
	default:
		_, err = addrspace.NewRange(c.RangeStart, c.RangeEnd)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// V6Config is the configuration of a DHCPv6 server core.
type V6Config struct {
	// Logger is used to log the DHCP events.  It must not be nil.
	Logger *slog.Logger

	// Clock is used to get current time.  It must not be nil.
	Clock timeutil.Clock

	// Prefix is the served prefix.  Its address must be a valid IPv6 address.
	Prefix netip.Prefix

	// RangeStart is the first address in the range to assign to DHCP clients.
	RangeStart netip.Addr

	// RangeEnd is the last address in the range to assign to DHCP clients.
	RangeEnd netip.Addr

	// DNSServers are the recursive DNS resolvers offered to clients.
	DNSServers []netip.Addr

	// ServerDUID is the DHCPv6 identity of this server.  When empty, a
	// DUID-UUID is generated at initialization.
	ServerDUID []byte

	// Options is the list of explicitly configured DHCP options to send to
	// clients in addition to the standard set.
	Options dhcpmsg6.Options

	// LeaseDuration is the TTL of a DHCP lease.  It must be at least
	// [MinLeaseDuration].
	LeaseDuration time.Duration

	// RapidCommit enables the two-message solicit-reply exchange for clients
	// that request it.
	RapidCommit bool
}

// type check
var _ validate.Interface = (*V6Config)(nil)

// Validate implements the [validate.Interface] interface for *V6Config.
func (c *V6Config) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotNil("Logger", c.Logger),
		validate.NotNilInterface("Clock", c.Clock),
	}

	if c.LeaseDuration < MinLeaseDuration {
		err = fmt.Errorf("LeaseDuration: %s: must be at least %s", c.LeaseDuration, MinLeaseDuration)
		errs = append(errs, err)
	}

	for i, dns := range c.DNSServers {
		if !dns.Is6() || dns.Is4In6() {
			errs = append(errs, fmt.Errorf("DNSServers: at index %d: %s: must be a valid ipv6", i, dns))
		}
	}

	if !c.Prefix.IsValid() || !c.Prefix.Addr().Is6() || c.Prefix.Addr().Is4In6() {
		errs = append(errs, fmt.Errorf("Prefix: %s: must be a valid ipv6 prefix", c.Prefix))

		return errors.Join(errs...)
	}

	switch {
	case !c.Prefix.Contains(c.RangeStart):
		errs = append(errs, fmt.Errorf("RangeStart: %s is not within %s", c.RangeStart, c.Prefix))
	case !c.Prefix.Contains(c.RangeEnd):
		errs = append(errs, fmt.Errorf("RangeEnd: %s is not within %s", c.RangeEnd, c.Prefix))
	default:
		_, err = addrspace.NewRange(c.RangeStart, c.RangeEnd)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
