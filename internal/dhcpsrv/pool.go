package dhcpsrv

import (
	"fmt"
	"net/netip"

	"github.com/AdguardTeam/AdGuardDHCP/internal/addrspace"
	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
)

// addrPool is the set of leasable addresses of a server.  The pool is the
// configured range; the range offsets of leased addresses are tracked in a
// set, and addresses reported unusable by clients are withheld in a separate
// declined set until an administrator clears it.
type addrPool struct {
	leased    *container.MapSet[uint64]
	declined  *container.MapSet[netip.Addr]
	addrSpace addrspace.Range
}

// newAddrPool returns a new pool over the given address range.
func newAddrPool(r addrspace.Range) (p *addrPool) {
	return &addrPool{
		leased:    container.NewMapSet[uint64](),
		declined:  container.NewMapSet[netip.Addr](),
		addrSpace: r,
	}
}

// contains returns true if ip is within the pool's range.
func (p *addrPool) contains(ip netip.Addr) (ok bool) {
	return p.addrSpace.Contains(ip)
}

// isFree returns true if ip is within the range, not currently leased, and
// not declined.
func (p *addrPool) isFree(ip netip.Addr) (ok bool) {
	off, ok := p.addrSpace.Offset(ip)

	return ok && !p.leased.Has(off) && !p.declined.Has(ip)
}

// alloc marks ip as leased.  ip must be within the range.
func (p *addrPool) alloc(ip netip.Addr) {
	off, ok := p.addrSpace.Offset(ip)
	if !ok {
		panic(fmt.Errorf("allocating %s: %w", ip, errors.ErrOutOfRange))
	}

	p.leased.Add(off)
}

// free returns ip to the pool.  ip must be within the range.
func (p *addrPool) free(ip netip.Addr) {
	off, ok := p.addrSpace.Offset(ip)
	if !ok {
		panic(fmt.Errorf("freeing %s: %w", ip, errors.ErrOutOfRange))
	}

	p.leased.Delete(off)
}

// decline returns ip to the pool and withholds it from future allocation
// until [addrPool.clearDeclined] is called.
func (p *addrPool) decline(ip netip.Addr) {
	p.free(ip)
	p.declined.Add(ip)
}

// clearDeclined makes all declined addresses allocatable again.
func (p *addrPool) clearDeclined() {
	p.declined = container.NewMapSet[netip.Addr]()
}

// nextFree returns the numerically lowest free address, or an empty
// [netip.Addr] if the pool is exhausted.
func (p *addrPool) nextFree() (ip netip.Addr) {
	return p.addrSpace.Find(p.isFree)
}
