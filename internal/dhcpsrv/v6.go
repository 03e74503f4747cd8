package dhcpsrv

import (
	"log/slog"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/addrspace"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg6"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
)

// Port numbers for DHCPv6.
//
// See RFC 3315 Section 5.2.
const (
	// ServerPortV6 is the standard DHCPv6 server and relay port.
	ServerPortV6 uint16 = 547

	// ClientPortV6 is the standard DHCPv6 client port.
	ClientPortV6 uint16 = 546
)

// ServerV6 is a DHCPv6 server core.  It performs no I/O; the transport drives
// it through [ServerV6.Process] and [ServerV6.Sweep].
type ServerV6 struct {
	logger *slog.Logger
	clock  timeutil.Clock

	// leasesMu protects leases, byIP, and pool.
	leasesMu *sync.Mutex

	pool *addrPool

	// leases is the two-level lease table: a client identified by its DUID
	// may hold leases under several identity associations.
	leases map[clientKey]map[uint32]*Lease
	byIP   map[netip.Addr]*Lease

	prefix     netip.Prefix
	serverDUID []byte

	dnsServers []netip.Addr
	extraOpts  dhcpmsg6.Options

	leaseTTL    time.Duration
	rapidCommit bool
}

// NewV6 creates a new DHCPv6 server core.  conf must be valid.  When conf
// carries no server DUID, a fresh DUID-UUID is generated.
func NewV6(conf *V6Config) (srv *ServerV6, err error) {
	defer func() { err = errors.Annotate(err, "dhcpv6: %w") }()

	if conf == nil {
		return nil, errNilConfig
	}

	err = conf.Validate()
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	addrSpace, _ := addrspace.NewRange(conf.RangeStart, conf.RangeEnd)

	duid := slices.Clone(conf.ServerDUID)
	if len(duid) == 0 {
		duid = dhcpmsg6.NewDUIDUUID()
	}

	return &ServerV6{
		logger:      conf.Logger,
		clock:       conf.Clock,
		leasesMu:    &sync.Mutex{},
		pool:        newAddrPool(addrSpace),
		leases:      map[clientKey]map[uint32]*Lease{},
		byIP:        map[netip.Addr]*Lease{},
		prefix:      conf.Prefix,
		serverDUID:  duid,
		dnsServers:  slices.Clone(conf.DNSServers),
		extraOpts:   slices.Clone(conf.Options),
		leaseTTL:    conf.LeaseDuration,
		rapidCommit: conf.RapidCommit,
	}, nil
}

// ServerDUID returns the DHCPv6 identity of the server.
func (srv *ServerV6) ServerDUID() (duid []byte) {
	return slices.Clone(srv.serverDUID)
}

// Leases returns deep clones of the current leases, sorted by IP address.
// It's a pure projection and never mutates the server state.
func (srv *ServerV6) Leases() (leases []*Lease) {
	srv.leasesMu.Lock()
	defer srv.leasesMu.Unlock()

	for _, byIAID := range srv.leases {
		for _, l := range byIAID {
			leases = append(leases, l.Clone())
		}
	}

	slices.SortFunc(leases, func(a, b *Lease) (res int) { return a.IP.Compare(b.IP) })

	return leases
}

// Sweep removes every lease that has expired at now and returns the removed
// addresses to the pool.  removed is the number of dropped leases.
func (srv *ServerV6) Sweep(now time.Time) (removed int) {
	srv.leasesMu.Lock()
	defer srv.leasesMu.Unlock()

	for duid, byIAID := range srv.leases {
		for iaid, l := range byIAID {
			if l.isExpired(now) {
				srv.removeLease(duid, iaid, l)
				removed++
			}
		}
	}

	return removed
}

// ClearDeclined makes the addresses previously reported unusable by clients
// allocatable again.
func (srv *ServerV6) ClearDeclined() {
	srv.leasesMu.Lock()
	defer srv.leasesMu.Unlock()

	srv.pool.clearDeclined()
}

// leaseFor returns the lease of the given identity association, if any.
// leasesMu must be locked.
func (srv *ServerV6) leaseFor(duid clientKey, iaid uint32) (l *Lease, ok bool) {
	l, ok = srv.leases[duid][iaid]

	return l, ok
}

// removeLease drops the lease of the given identity association and frees its
// address.  leasesMu must be locked.
func (srv *ServerV6) removeLease(duid clientKey, iaid uint32, l *Lease) {
	delete(srv.leases[duid], iaid)
	if len(srv.leases[duid]) == 0 {
		delete(srv.leases, duid)
	}

	delete(srv.byIP, l.IP)
	srv.pool.free(l.IP)
}

// allocateLease returns the active lease of the given identity association,
// allocating one if necessary.  When one of reqAddrs is free, the first such
// address is preferred; otherwise the lowest free address is picked.  It
// returns [ErrNoAddrsAvail] if the pool is exhausted.  leasesMu must be
// locked.
func (srv *ServerV6) allocateLease(
	duid clientKey,
	iaid uint32,
	reqAddrs []netip.Addr,
) (l *Lease, err error) {
	now := srv.clock.Now()

	l, ok := srv.leaseFor(duid, iaid)
	if ok && !l.isExpired(now) {
		return l, nil
	} else if ok {
		srv.removeLease(duid, iaid, l)
	}

	ip, err := srv.chooseAddr(duid, iaid, reqAddrs)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	l = &Lease{
		IP:     ip,
		Expiry: now.Add(srv.leaseTTL),
		DUID:   []byte(duid),
		IAID:   iaid,
	}

	byIAID, ok := srv.leases[duid]
	if !ok {
		byIAID = map[uint32]*Lease{}
		srv.leases[duid] = byIAID
	}

	byIAID[iaid] = l
	srv.byIP[l.IP] = l
	srv.pool.alloc(l.IP)

	return l, nil
}

// chooseAddr picks the address the given identity association would be bound
// to, without committing anything: the active lease's address, the first free
// requested address, or the lowest free address.  It returns
// [ErrNoAddrsAvail] if the pool is exhausted.  leasesMu must be locked.
func (srv *ServerV6) chooseAddr(
	duid clientKey,
	iaid uint32,
	reqAddrs []netip.Addr,
) (ip netip.Addr, err error) {
	if l, ok := srv.leaseFor(duid, iaid); ok && !l.isExpired(srv.clock.Now()) {
		return l.IP, nil
	}

	for _, req := range reqAddrs {
		if srv.pool.isFree(req) {
			return req, nil
		}
	}

	ip = srv.pool.nextFree()
	if !ip.IsValid() {
		return netip.Addr{}, ErrNoAddrsAvail
	}

	return ip, nil
}
