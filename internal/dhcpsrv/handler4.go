package dhcpsrv

import (
	"context"
	"net/netip"
	"slices"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg4"
	"github.com/AdguardTeam/golibs/errors"
)

// Process handles a single inbound DHCPv4 datagram and returns the serialized
// responses, if any.  A non-nil error means the datagram was malformed and
// must be dropped by the transport without a response.  Protocol-level
// failures are encoded into the responses and never returned as errors.
func (srv *ServerV4) Process(
	ctx context.Context,
	data []byte,
	peer netip.AddrPort,
) (resps []Response, err error) {
	defer func() { err = errors.Annotate(err, "dhcpv4: %w") }()

	msg, err := dhcpmsg4.ParseMessage(data)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	if msg.Op != dhcpmsg4.OpBootRequest {
		srv.logger.DebugContext(ctx, "skipping non-request message", "op", msg.Op)

		return nil, nil
	}

	typ, ok := msg.Options.MessageType()
	if !ok {
		srv.logger.DebugContext(ctx, "skipping message without a type")

		return nil, nil
	}

	srv.leasesMu.Lock()
	defer srv.leasesMu.Unlock()

	switch typ {
	case dhcpmsg4.MessageTypeDiscover:
		return srv.handleDiscover(ctx, msg, peer), nil
	case dhcpmsg4.MessageTypeRequest:
		return srv.handleRequest(ctx, msg, peer), nil
	case dhcpmsg4.MessageTypeDecline:
		srv.handleDecline(ctx, msg)

		return nil, nil
	case dhcpmsg4.MessageTypeRelease:
		srv.handleRelease(ctx, msg)

		return nil, nil
	case dhcpmsg4.MessageTypeInform:
		return srv.handleInform(ctx, msg, peer), nil
	default:
		srv.logger.DebugContext(ctx, "skipping message", "type", typ)

		return nil, nil
	}
}

// handleDiscover handles messages of type DHCPDISCOVER.  A DHCPDISCOVER with
// no allocatable address gets no response at all.
//
// See https://datatracker.ietf.org/doc/html/rfc2131#section-4.3.1.
func (srv *ServerV4) handleDiscover(
	ctx context.Context,
	msg *dhcpmsg4.Message,
	peer netip.AddrPort,
) (resps []Response) {
	key := clientKey(msg.ClientKey())
	reqIP, _ := msg.Options.IP(dhcpmsg4.OptionRequestedIP)

	l, err := srv.allocateLease(key, reqIP, msg)
	if err != nil {
		srv.logger.DebugContext(ctx, "discover got no lease", "mac", msg.HWAddr(), "err", err)

		return nil
	}

	srv.logger.DebugContext(ctx, "offering", "ip", l.IP, "mac", msg.HWAddr())

	return []Response{srv.buildReply(msg, peer, dhcpmsg4.MessageTypeOffer, l)}
}

// handleRequest handles messages of type DHCPREQUEST.  A request addressed to
// another server is dropped silently; a request for an address this server
// cannot bind to the client is answered with DHCPNAK.
//
// See https://datatracker.ietf.org/doc/html/rfc2131#section-4.3.2.
func (srv *ServerV4) handleRequest(
	ctx context.Context,
	msg *dhcpmsg4.Message,
	peer netip.AddrPort,
) (resps []Response) {
	if sid, ok := msg.Options.IP(dhcpmsg4.OptionServerIdentifier); ok && sid != srv.serverID {
		srv.logger.DebugContext(ctx, "request for another server", "serverid", sid)

		return nil
	}

	reqIP, ok := msg.Options.IP(dhcpmsg4.OptionRequestedIP)
	if !ok {
		// A request to verify or extend an existing lease carries the address
		// in ciaddr instead.
		reqIP = msg.CIAddr
	}

	if !reqIP.IsValid() || reqIP.IsUnspecified() {
		srv.logger.DebugContext(ctx, "request without an address")

		return nil
	}

	key := clientKey(msg.ClientKey())

	if !srv.pool.contains(reqIP) {
		return []Response{srv.buildNAK(msg, peer, "requested address not in range")}
	}

	now := srv.clock.Now()

	if l, ok := srv.leases[key]; ok && !l.isExpired(now) {
		if l.IP != reqIP {
			return []Response{srv.buildNAK(msg, peer, "requested address does not match lease")}
		}

		srv.renewLease(l)
		l.Hostname = hostname4(msg, l.Hostname)

		srv.logger.DebugContext(ctx, "renewed", "ip", l.IP, "mac", msg.HWAddr())

		return []Response{srv.buildReply(msg, peer, dhcpmsg4.MessageTypeACK, l)}
	}

	// The address is also acceptable when it's only held by this client's own
	// expired lease, which is reclaimed by the allocation below.
	if held := srv.byIP[reqIP]; !srv.pool.isFree(reqIP) && (held == nil || held != srv.leases[key]) {
		return []Response{srv.buildNAK(msg, peer, "requested address not available")}
	}

	l, err := srv.allocateLease(key, reqIP, msg)
	if err != nil {
		return []Response{srv.buildNAK(msg, peer, err.Error())}
	}

	l.Hostname = hostname4(msg, l.Hostname)

	srv.logger.DebugContext(ctx, "acknowledged", "ip", l.IP, "mac", msg.HWAddr())

	return []Response{srv.buildReply(msg, peer, dhcpmsg4.MessageTypeACK, l)}
}

// handleDecline handles messages of type DHCPDECLINE.  The declined address
// is withheld from allocation until [ServerV4.ClearDeclined].  There is no
// response.
func (srv *ServerV4) handleDecline(ctx context.Context, msg *dhcpmsg4.Message) {
	reqIP, ok := msg.Options.IP(dhcpmsg4.OptionRequestedIP)
	if !ok {
		srv.logger.DebugContext(ctx, "skipping decline without requested ip")

		return
	}

	key := clientKey(msg.ClientKey())

	l, ok := srv.leases[key]
	if !ok || l.IP != reqIP {
		srv.logger.DebugContext(ctx, "skipping decline mismatch", "ip", reqIP)

		return
	}

	srv.logger.WarnContext(ctx, "lease reported to be unavailable", "ip", l.IP)

	delete(srv.leases, key)
	delete(srv.byIP, l.IP)
	srv.pool.decline(l.IP)
}

// handleRelease handles messages of type DHCPRELEASE.  There is no response.
func (srv *ServerV4) handleRelease(ctx context.Context, msg *dhcpmsg4.Message) {
	ip := msg.CIAddr
	key := clientKey(msg.ClientKey())

	l, ok := srv.leases[key]
	if !ok || l.IP != ip {
		srv.logger.DebugContext(ctx, "skipping release mismatch", "ip", ip)

		return
	}

	srv.logger.DebugContext(ctx, "released", "ip", l.IP, "mac", msg.HWAddr())

	srv.removeLease(key, l)
}

// handleInform handles messages of type DHCPINFORM: the client has an address
// already and only asks for configuration.  The DHCPACK carries no lease.
//
// See https://datatracker.ietf.org/doc/html/rfc2131#section-4.3.5.
func (srv *ServerV4) handleInform(
	ctx context.Context,
	msg *dhcpmsg4.Message,
	peer netip.AddrPort,
) (resps []Response) {
	srv.logger.DebugContext(ctx, "informing", "ciaddr", msg.CIAddr)

	return []Response{srv.buildReply(msg, peer, dhcpmsg4.MessageTypeACK, nil)}
}

// hostname4 returns the hostname option of msg, falling back to orig.
func hostname4(msg *dhcpmsg4.Message, orig string) (hostname string) {
	if s, ok := msg.Options.Text(dhcpmsg4.OptionHostName); ok {
		return s
	}

	return orig
}

// buildReply builds a DHCPOFFER or DHCPACK response for msg.  l is nil for a
// DHCPINFORM acknowledgement, which carries configuration options only and a
// zero yiaddr.
func (srv *ServerV4) buildReply(
	msg *dhcpmsg4.Message,
	peer netip.AddrPort,
	typ dhcpmsg4.MessageType,
	l *Lease,
) (resp Response) {
	reply := srv.newReplyHeader(msg)

	reply.Options = dhcpmsg4.Options{
		dhcpmsg4.NewOption(dhcpmsg4.OptionMessageType, typ),
		dhcpmsg4.NewOption(dhcpmsg4.OptionServerIdentifier, dhcpmsg4.IP(srv.serverID)),
	}

	if l != nil {
		reply.YIAddr = l.IP
		reply.Options = append(
			reply.Options,
			dhcpmsg4.NewOption(dhcpmsg4.OptionLeaseTime, dhcpmsg4.U32(srv.leaseTTL.Seconds())),
		)
	}

	// The subnet mask must precede the router option on the wire.
	reply.Options = append(
		reply.Options,
		dhcpmsg4.NewOption(dhcpmsg4.OptionSubnetMask, dhcpmsg4.IP(srv.netmask)),
	)

	if srv.gateway.IsValid() {
		reply.Options = append(
			reply.Options,
			dhcpmsg4.NewOption(dhcpmsg4.OptionRouter, dhcpmsg4.IP(srv.gateway)),
		)
	}

	if len(srv.dnsServers) > 0 {
		reply.Options = append(
			reply.Options,
			dhcpmsg4.NewOption(dhcpmsg4.OptionDomainNameServer, dhcpmsg4.IPList(srv.dnsServers)),
		)
	}

	srv.appendExtraOptions(reply, msg)

	return srv.newResponse(reply, msg, peer)
}

// appendExtraOptions appends the explicitly configured options to reply.  The
// ones named in the client's parameter request list go first, in the order
// the client asked for them; the rest follow in configuration order.
//
// See https://datatracker.ietf.org/doc/html/rfc2132#section-9.8.
func (srv *ServerV4) appendExtraOptions(reply, msg *dhcpmsg4.Message) {
	rest := slices.Clone(srv.extraOpts)

	for _, code := range msg.Options.ParameterRequestList() {
		i := slices.IndexFunc(rest, func(o dhcpmsg4.Option) (ok bool) { return o.Code == code })
		if i < 0 {
			continue
		}

		reply.Options = append(reply.Options, rest[i])
		rest = slices.Delete(rest, i, i+1)
	}

	reply.Options = append(reply.Options, rest...)
}

// buildNAK builds a DHCPNAK response carrying the given error text.
func (srv *ServerV4) buildNAK(
	msg *dhcpmsg4.Message,
	peer netip.AddrPort,
	text string,
) (resp Response) {
	reply := srv.newReplyHeader(msg)

	reply.Options = dhcpmsg4.Options{
		dhcpmsg4.NewOption(dhcpmsg4.OptionMessageType, dhcpmsg4.MessageTypeNAK),
		dhcpmsg4.NewOption(dhcpmsg4.OptionServerIdentifier, dhcpmsg4.IP(srv.serverID)),
		dhcpmsg4.NewOption(dhcpmsg4.OptionMessage, dhcpmsg4.Text(text)),
	}

	return srv.newResponse(reply, msg, peer)
}

// newReplyHeader returns a reply message with the fixed fields copied from
// msg according to RFC 2131 Table 3.
func (srv *ServerV4) newReplyHeader(msg *dhcpmsg4.Message) (reply *dhcpmsg4.Message) {
	reply = &dhcpmsg4.Message{
		Op:     dhcpmsg4.OpBootReply,
		HType:  msg.HType,
		HLen:   msg.HLen,
		XID:    msg.XID,
		Flags:  msg.Flags,
		GIAddr: msg.GIAddr,
		SIAddr: srv.gateway,
		CHAddr: msg.CHAddr,
	}

	return reply
}

// newResponse serializes reply and attaches the destination hint: a relayed
// request goes back to the relay, an addressed client is answered by unicast,
// a response is broadcast when the flags field asks for it or peer is not
// usable, and everything else is sent to peer.
func (srv *ServerV4) newResponse(
	reply, msg *dhcpmsg4.Message,
	peer netip.AddrPort,
) (resp Response) {
	resp = Response{Data: reply.Bytes()}

	switch {
	case msg.GIAddr.IsValid() && !msg.GIAddr.IsUnspecified():
		resp.Peer = netip.AddrPortFrom(msg.GIAddr, ServerPortV4)
	case msg.CIAddr.IsValid() && !msg.CIAddr.IsUnspecified():
		resp.Peer = netip.AddrPortFrom(msg.CIAddr, ClientPortV4)
	case msg.Flags&dhcpmsg4.FlagBroadcast != 0 || !peer.IsValid() || peer.Addr().IsUnspecified():
		resp.Broadcast = true
	default:
		resp.Peer = peer
	}

	return resp
}
