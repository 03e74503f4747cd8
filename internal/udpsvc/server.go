// Package udpsvc contains the UDP transport adapter for the DHCP server
// cores.  The adapter owns the socket, the sweep timer, and nothing else: it
// funnels every inbound datagram through a single serving goroutine into the
// core and routes the returned responses according to their destination
// hints.
package udpsvc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsrv"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
)

// Core is the part of a DHCP server core the transport drives.  Both
// [dhcpsrv.ServerV4] and [dhcpsrv.ServerV6] implement it.
type Core interface {
	// Process handles a single inbound datagram and returns the serialized
	// responses.  A non-nil error means the datagram was malformed and is
	// dropped.
	Process(ctx context.Context, data []byte, peer netip.AddrPort) (resps []dhcpsrv.Response, err error)

	// Sweep removes the leases that have expired at now.
	Sweep(now time.Time) (removed int)
}

// type checks
var (
	_ Core = (*dhcpsrv.ServerV4)(nil)
	_ Core = (*dhcpsrv.ServerV6)(nil)
)

// maxDatagramLen is the size of the read buffer.  It fits any DHCP message
// this server is willing to parse.
const maxDatagramLen = 4096

// DefaultSweepIvl is the default interval between lease expiry sweeps.
const DefaultSweepIvl = 1 * time.Minute

// Config is the configuration of a single UDP DHCP listener.
type Config struct {
	// Logger is used to log the transport events.  It must not be nil.
	Logger *slog.Logger

	// Core is the server core driven by this listener.  It must not be nil.
	Core Core

	// Clock is used to get current time for sweeps.  It must not be nil.
	Clock timeutil.Clock

	// ListenAddr is the local address to listen on, typically port 67 for
	// DHCPv4 and port 547 for DHCPv6.  It must be valid.
	ListenAddr netip.AddrPort

	// BroadcastAddr is the destination of responses hinted as broadcast.  When
	// it is empty, such responses are not sent.  DHCPv6 cores never hint
	// broadcast, so DHCPv6 listeners don't use it.
	BroadcastAddr netip.AddrPort

	// SweepIvl is the interval between lease expiry sweeps.  It must be
	// positive.
	SweepIvl time.Duration
}

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.
func (conf *Config) Validate() (err error) {
	if conf == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotNil("Logger", conf.Logger),
		validate.NotNilInterface("Core", conf.Core),
		validate.NotNilInterface("Clock", conf.Clock),
		validate.Positive("SweepIvl", conf.SweepIvl),
	}

	if !conf.ListenAddr.IsValid() {
		errs = append(errs, fmt.Errorf("ListenAddr: %w", errors.ErrEmptyValue))
	}

	return errors.Join(errs...)
}

// Server is a UDP DHCP listener bound to a single server core.
type Server struct {
	logger *slog.Logger
	core   Core
	clock  timeutil.Clock

	conn *net.UDPConn

	listenAddr    netip.AddrPort
	broadcastAddr netip.AddrPort
	sweepIvl      time.Duration

	done     chan struct{}
	stopOnce *sync.Once
	stop     chan struct{}
}

// New creates a new UDP DHCP listener.  conf must be valid.
func New(conf *Config) (srv *Server, err error) {
	defer func() { err = errors.Annotate(err, "udp listener: %w") }()

	err = conf.Validate()
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	return &Server{
		logger:        conf.Logger,
		core:          conf.Core,
		clock:         conf.Clock,
		listenAddr:    conf.ListenAddr,
		broadcastAddr: conf.BroadcastAddr,
		sweepIvl:      conf.SweepIvl,
		done:          make(chan struct{}),
		stopOnce:      &sync.Once{},
		stop:          make(chan struct{}),
	}, nil
}

// LocalAddr returns the actual local address of the listener.  It is only
// meaningful after a successful [Server.Start].
func (srv *Server) LocalAddr() (addr netip.AddrPort) {
	if srv.conn == nil {
		return netip.AddrPort{}
	}

	return srv.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Start opens the socket and starts the serving and sweeping goroutines.
func (srv *Server) Start(ctx context.Context) (err error) {
	defer func() { err = errors.Annotate(err, "starting udp listener: %w") }()

	srv.conn, err = net.ListenUDP("udp", net.UDPAddrFromAddrPort(srv.listenAddr))
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return err
	}

	srv.logger.InfoContext(ctx, "listening", "addr", srv.LocalAddr())

	go srv.serve(context.WithoutCancel(ctx))
	go srv.sweep(context.WithoutCancel(ctx))

	return nil
}

// Shutdown closes the socket and waits for the serving goroutine to finish.
func (srv *Server) Shutdown(ctx context.Context) (err error) {
	defer func() { err = errors.Annotate(err, "shutting down udp listener: %w") }()

	srv.stopOnce.Do(func() { close(srv.stop) })

	if srv.conn != nil {
		err = srv.conn.Close()
	}

	select {
	case <-srv.done:
		// Don't wrap the error since it's informative enough as is.
		return err
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
}

// serve reads datagrams from the socket and applies the core to each of them
// in order.  It runs until the socket is closed.
func (srv *Server) serve(ctx context.Context) {
	defer slogutil.RecoverAndLog(ctx, srv.logger)

	defer close(srv.done)

	buf := make([]byte, maxDatagramLen)
	for {
		n, peer, err := srv.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				srv.logger.ErrorContext(ctx, "reading datagram", slogutil.KeyError, err)
			}

			return
		}

		resps, err := srv.core.Process(ctx, buf[:n], peer)
		if err != nil {
			// A malformed datagram is dropped without a response.
			srv.logger.DebugContext(ctx, "dropping datagram", slogutil.KeyError, err)

			continue
		}

		for _, resp := range resps {
			srv.write(ctx, resp)
		}
	}
}

// write delivers a single response according to its destination hint.
func (srv *Server) write(ctx context.Context, resp dhcpsrv.Response) {
	dest := resp.Peer
	if resp.Broadcast {
		dest = srv.broadcastAddr
	}

	if !dest.IsValid() {
		srv.logger.DebugContext(ctx, "skipping response without destination")

		return
	}

	_, err := srv.conn.WriteToUDPAddrPort(resp.Data, dest)
	if err != nil {
		srv.logger.ErrorContext(ctx, "writing response", "peer", dest, slogutil.KeyError, err)
	}
}

// sweep periodically drops expired leases.  It runs until [Server.Shutdown].
func (srv *Server) sweep(ctx context.Context) {
	defer slogutil.RecoverAndLog(ctx, srv.logger)

	t := time.NewTicker(srv.sweepIvl)
	defer t.Stop()

	for {
		select {
		case <-srv.stop:
			return
		case <-t.C:
			if removed := srv.core.Sweep(srv.clock.Now()); removed > 0 {
				srv.logger.DebugContext(ctx, "swept expired leases", "count", removed)
			}
		}
	}
}
