package dhcpsrv

import (
	"log/slog"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/addrspace"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg4"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
)

// Port numbers for DHCPv4.
//
// See RFC 2131 Section 4.1.
const (
	// ServerPortV4 is the standard DHCPv4 server port.
	ServerPortV4 uint16 = 67

	// ClientPortV4 is the standard DHCPv4 client port.
	ClientPortV4 uint16 = 68
)

// ServerV4 is a DHCPv4 server core.  It performs no I/O; the transport drives
// it through [ServerV4.Process] and [ServerV4.Sweep].
type ServerV4 struct {
	logger *slog.Logger
	clock  timeutil.Clock

	// leasesMu protects leases, byIP, and pool.
	leasesMu *sync.Mutex

	pool   *addrPool
	leases map[clientKey]*Lease
	byIP   map[netip.Addr]*Lease

	subnet   netip.Prefix
	netmask  netip.Addr
	gateway  netip.Addr
	serverID netip.Addr

	dnsServers []netip.Addr
	extraOpts  dhcpmsg4.Options

	leaseTTL time.Duration
}

// NewV4 creates a new DHCPv4 server core.  conf must be valid.
func NewV4(conf *V4Config) (srv *ServerV4, err error) {
	defer func() { err = errors.Annotate(err, "dhcpv4: %w") }()

	if conf == nil {
		return nil, errNilConfig
	}

	err = conf.Validate()
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	subnet, _ := addrspace.Subnet(conf.Subnet, conf.Netmask)
	addrSpace, _ := addrspace.NewRange(conf.RangeStart, conf.RangeEnd)

	serverID := conf.GatewayIP
	if !serverID.IsValid() {
		serverID = conf.Subnet
	}

	return &ServerV4{
		logger:     conf.Logger,
		clock:      conf.Clock,
		leasesMu:   &sync.Mutex{},
		pool:       newAddrPool(addrSpace),
		leases:     map[clientKey]*Lease{},
		byIP:       map[netip.Addr]*Lease{},
		subnet:     subnet,
		netmask:    conf.Netmask,
		gateway:    conf.GatewayIP,
		serverID:   serverID,
		dnsServers: slices.Clone(conf.DNSServers),
		extraOpts:  slices.Clone(conf.Options),
		leaseTTL:   conf.LeaseDuration,
	}, nil
}

// Leases returns deep clones of the current leases, sorted by IP address.
// It's a pure projection and never mutates the server state.
func (srv *ServerV4) Leases() (leases []*Lease) {
	srv.leasesMu.Lock()
	defer srv.leasesMu.Unlock()

	for _, l := range srv.leases {
		leases = append(leases, l.Clone())
	}

	slices.SortFunc(leases, func(a, b *Lease) (res int) { return a.IP.Compare(b.IP) })

	return leases
}

// Sweep removes every lease that has expired at now and returns the removed
// addresses to the pool.  removed is the number of dropped leases.
func (srv *ServerV4) Sweep(now time.Time) (removed int) {
	srv.leasesMu.Lock()
	defer srv.leasesMu.Unlock()

	for key, l := range srv.leases {
		if l.isExpired(now) {
			srv.removeLease(key, l)
			removed++
		}
	}

	return removed
}

// ClearDeclined makes the addresses previously reported unusable by clients
// allocatable again.
func (srv *ServerV4) ClearDeclined() {
	srv.leasesMu.Lock()
	defer srv.leasesMu.Unlock()

	srv.pool.clearDeclined()
}

// removeLease drops l from the lease table and frees its address.  leasesMu
// must be locked.
func (srv *ServerV4) removeLease(key clientKey, l *Lease) {
	delete(srv.leases, key)
	delete(srv.byIP, l.IP)
	srv.pool.free(l.IP)
}

// insertLease adds l under key, replacing any previous lease of the client.
// leasesMu must be locked.
func (srv *ServerV4) insertLease(key clientKey, l *Lease) {
	if prev, ok := srv.leases[key]; ok {
		srv.removeLease(key, prev)
	}

	srv.leases[key] = l
	srv.byIP[l.IP] = l
	srv.pool.alloc(l.IP)
}

// allocateLease returns the active lease of the client with the given key,
// allocating one if necessary.  When reqIP is a valid free address it is
// preferred; otherwise the lowest free address is picked.  It returns
// [ErrNoAddrsAvail] if the pool is exhausted.  leasesMu must be locked.
func (srv *ServerV4) allocateLease(
	key clientKey,
	reqIP netip.Addr,
	msg *dhcpmsg4.Message,
) (l *Lease, err error) {
	now := srv.clock.Now()

	l, ok := srv.leases[key]
	if ok && !l.isExpired(now) {
		return l, nil
	} else if ok {
		srv.removeLease(key, l)
	}

	ip := netip.Addr{}
	if reqIP.IsValid() && srv.pool.isFree(reqIP) {
		ip = reqIP
	} else {
		ip = srv.pool.nextFree()
	}

	if !ip.IsValid() {
		return nil, ErrNoAddrsAvail
	}

	l = &Lease{
		IP:     ip,
		Expiry: now.Add(srv.leaseTTL),
		HWAddr: slices.Clone(msg.HWAddr()),
	}
	if msg.Options.Has(dhcpmsg4.OptionClientIdentifier) {
		l.ClientID = []byte(key)
	}

	srv.insertLease(key, l)

	return l, nil
}

// renewLease advances the expiry of l.  leasesMu must be locked.
func (srv *ServerV4) renewLease(l *Lease) {
	l.Expiry = srv.clock.Now().Add(srv.leaseTTL)
}
