package dhcpsrv

import (
	"bytes"
	"context"
	"net/netip"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg6"
	"github.com/AdguardTeam/golibs/errors"
)

// Process handles a single inbound DHCPv6 datagram and returns the serialized
// responses, if any.  A non-nil error means the datagram was malformed and
// must be dropped by the transport without a response.  Protocol-level
// failures are encoded into status-code options and never returned as errors.
func (srv *ServerV6) Process(
	ctx context.Context,
	data []byte,
	peer netip.AddrPort,
) (resps []Response, err error) {
	defer func() { err = errors.Annotate(err, "dhcpv6: %w") }()

	msg, err := dhcpmsg6.ParseMessage(data)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	srv.leasesMu.Lock()
	defer srv.leasesMu.Unlock()

	switch msg.Type {
	case dhcpmsg6.MsgTypeSolicit:
		return srv.handleSolicit(ctx, msg, peer)
	case dhcpmsg6.MsgTypeRequest:
		return srv.handleRequest(ctx, msg, peer)
	case dhcpmsg6.MsgTypeConfirm:
		return srv.handleConfirm(ctx, msg, peer)
	case dhcpmsg6.MsgTypeRenew:
		return srv.handleRenew(ctx, msg, peer, true)
	case dhcpmsg6.MsgTypeRebind:
		return srv.handleRenew(ctx, msg, peer, false)
	case dhcpmsg6.MsgTypeRelease:
		return srv.handleRelease(ctx, msg, peer)
	case dhcpmsg6.MsgTypeInformationRequest:
		return srv.handleInformationRequest(ctx, msg, peer), nil
	default:
		srv.logger.DebugContext(ctx, "skipping message", "type", msg.Type)

		return nil, nil
	}
}

// handleSolicit handles SOLICIT messages.  When rapid commit is enabled and
// requested, the allocation is committed at once and answered with REPLY;
// otherwise the addresses a request would bind are chosen and advertised, and
// nothing is held for the client until it sends a REQUEST.
//
// See https://datatracker.ietf.org/doc/html/rfc3315#section-17.2.
func (srv *ServerV6) handleSolicit(
	ctx context.Context,
	msg *dhcpmsg6.Message,
	peer netip.AddrPort,
) (resps []Response, err error) {
	duid, ok := msg.Options.ClientID()
	if !ok {
		srv.logger.DebugContext(ctx, "skipping solicit without client id")

		return nil, nil
	}

	ias, err := msg.Options.IANAs()
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	rapid := srv.rapidCommit && msg.Options.Has(dhcpmsg6.OptionRapidCommit)

	typ := dhcpmsg6.MsgTypeAdvertise
	if rapid {
		typ = dhcpmsg6.MsgTypeReply
	}

	reply := srv.newReply(msg, typ, duid)
	if rapid {
		reply.Options = append(reply.Options, dhcpmsg6.Option{Code: dhcpmsg6.OptionRapidCommit})
	}

	for _, ia := range ias {
		if rapid {
			reply.Options = append(reply.Options, srv.allocateIANA(ctx, clientKey(duid), ia))
		} else {
			reply.Options = append(reply.Options, srv.advertiseIANA(ctx, clientKey(duid), ia))
		}
	}

	srv.appendConfOptions(reply)

	return []Response{srv.newResponse(reply, peer)}, nil
}

// handleRequest handles REQUEST messages, committing the allocations of every
// identity association in the message.
//
// See https://datatracker.ietf.org/doc/html/rfc3315#section-18.2.1.
func (srv *ServerV6) handleRequest(
	ctx context.Context,
	msg *dhcpmsg6.Message,
	peer netip.AddrPort,
) (resps []Response, err error) {
	duid, ok := msg.Options.ClientID()
	if !ok {
		srv.logger.DebugContext(ctx, "skipping request without client id")

		return nil, nil
	}

	if !srv.checkServerID(ctx, msg, false) {
		return nil, nil
	}

	ias, err := msg.Options.IANAs()
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	reply := srv.newReply(msg, dhcpmsg6.MsgTypeReply, duid)
	for _, ia := range ias {
		reply.Options = append(reply.Options, srv.allocateIANA(ctx, clientKey(duid), ia))
	}

	srv.appendConfOptions(reply)

	return []Response{srv.newResponse(reply, peer)}, nil
}

// handleConfirm handles CONFIRM messages: the client asks whether the
// addresses it holds are still appropriate for its link.  Each identity
// association is answered with Success or NotOnLink.
//
// See https://datatracker.ietf.org/doc/html/rfc3315#section-18.2.2.
func (srv *ServerV6) handleConfirm(
	ctx context.Context,
	msg *dhcpmsg6.Message,
	peer netip.AddrPort,
) (resps []Response, err error) {
	duid, ok := msg.Options.ClientID()
	if !ok {
		srv.logger.DebugContext(ctx, "skipping confirm without client id")

		return nil, nil
	}

	ias, err := msg.Options.IANAs()
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	reply := srv.newReply(msg, dhcpmsg6.MsgTypeReply, duid)
	for _, ia := range ias {
		var addrs []dhcpmsg6.IAAddr
		addrs, err = ia.Addrs()
		if err != nil {
			// Don't wrap the error since it's informative enough as is.
			return nil, err
		}

		status := dhcpmsg6.Status{Code: dhcpmsg6.StatusSuccess, Message: "all addresses on link"}
		for _, a := range addrs {
			if !srv.prefix.Contains(a.Addr) {
				status = dhcpmsg6.Status{
					Code:    dhcpmsg6.StatusNotOnLink,
					Message: a.Addr.String() + " not on link",
				}

				break
			}
		}

		reply.Options = append(reply.Options, srv.newIANA(ia.IAID, dhcpmsg6.Options{status.Encode()}))
	}

	return []Response{srv.newResponse(reply, peer)}, nil
}

// handleRenew handles RENEW and REBIND messages.  A RENEW addressed to
// another server is dropped; a REBIND accepts the absence of a server
// identifier.  An identity association with no lease on this server is
// answered with NoBinding.
func (srv *ServerV6) handleRenew(
	ctx context.Context,
	msg *dhcpmsg6.Message,
	peer netip.AddrPort,
	needServerID bool,
) (resps []Response, err error) {
	duid, ok := msg.Options.ClientID()
	if !ok {
		srv.logger.DebugContext(ctx, "skipping renew without client id")

		return nil, nil
	}

	if !srv.checkServerID(ctx, msg, needServerID) {
		return nil, nil
	}

	ias, err := msg.Options.IANAs()
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	reply := srv.newReply(msg, dhcpmsg6.MsgTypeReply, duid)
	for _, ia := range ias {
		l, ok := srv.leaseFor(clientKey(duid), ia.IAID)
		if !ok {
			status := dhcpmsg6.Status{Code: dhcpmsg6.StatusNoBinding, Message: "no binding"}
			reply.Options = append(
				reply.Options,
				srv.newIANA(ia.IAID, dhcpmsg6.Options{status.Encode()}),
			)

			continue
		}

		l.Expiry = srv.clock.Now().Add(srv.leaseTTL)

		srv.logger.DebugContext(ctx, "renewed", "ip", l.IP, "iaid", ia.IAID)

		reply.Options = append(
			reply.Options,
			srv.newIANA(ia.IAID, dhcpmsg6.Options{srv.newIAAddr(l.IP)}),
		)
	}

	srv.appendConfOptions(reply)

	return []Response{srv.newResponse(reply, peer)}, nil
}

// handleRelease handles RELEASE messages, removing the leases of every
// identity association in the message.
//
// See https://datatracker.ietf.org/doc/html/rfc3315#section-18.2.6.
func (srv *ServerV6) handleRelease(
	ctx context.Context,
	msg *dhcpmsg6.Message,
	peer netip.AddrPort,
) (resps []Response, err error) {
	duid, ok := msg.Options.ClientID()
	if !ok {
		srv.logger.DebugContext(ctx, "skipping release without client id")

		return nil, nil
	}

	if !srv.checkServerID(ctx, msg, false) {
		return nil, nil
	}

	ias, err := msg.Options.IANAs()
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	reply := srv.newReply(msg, dhcpmsg6.MsgTypeReply, duid)
	for _, ia := range ias {
		status := dhcpmsg6.Status{Code: dhcpmsg6.StatusSuccess, Message: "released"}

		l, ok := srv.leaseFor(clientKey(duid), ia.IAID)
		if ok {
			srv.logger.DebugContext(ctx, "released", "ip", l.IP, "iaid", ia.IAID)
			srv.removeLease(clientKey(duid), ia.IAID, l)
		} else {
			status = dhcpmsg6.Status{Code: dhcpmsg6.StatusNoBinding, Message: "no binding"}
		}

		reply.Options = append(
			reply.Options,
			srv.newIANA(ia.IAID, dhcpmsg6.Options{status.Encode()}),
		)
	}

	st := dhcpmsg6.Status{Code: dhcpmsg6.StatusSuccess, Message: "release received"}
	reply.Options = append(reply.Options, st.Encode())

	return []Response{srv.newResponse(reply, peer)}, nil
}

// handleInformationRequest handles INFORMATION-REQUEST messages: the reply
// carries configuration options only.
func (srv *ServerV6) handleInformationRequest(
	ctx context.Context,
	msg *dhcpmsg6.Message,
	peer netip.AddrPort,
) (resps []Response) {
	srv.logger.DebugContext(ctx, "informing")

	duid, _ := msg.Options.ClientID()
	reply := srv.newReply(msg, dhcpmsg6.MsgTypeReply, duid)
	srv.appendConfOptions(reply)

	return []Response{srv.newResponse(reply, peer)}
}

// checkServerID reports whether msg may be processed by this server.  A
// message carrying a foreign server identifier is never for us; when required
// is true, the identifier must also be present.
func (srv *ServerV6) checkServerID(
	ctx context.Context,
	msg *dhcpmsg6.Message,
	required bool,
) (ok bool) {
	sid, has := msg.Options.ServerID()
	if !has {
		if required {
			srv.logger.DebugContext(ctx, "skipping message without server id")
		}

		return !required
	}

	if !bytes.Equal(sid, srv.serverDUID) {
		srv.logger.DebugContext(ctx, "skipping message for another server")

		return false
	}

	return true
}

// requestedAddrs returns the addresses requested in the nested IAADDR
// sub-options of ia.  An unreadable IAADDR set means the server chooses the
// address.
func (srv *ServerV6) requestedAddrs(ctx context.Context, ia dhcpmsg6.IANA) (reqAddrs []netip.Addr) {
	addrs, err := ia.Addrs()
	if err != nil {
		srv.logger.DebugContext(ctx, "bad iaaddr in ia_na", "iaid", ia.IAID, "err", err)

		return nil
	}

	reqAddrs = make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		reqAddrs = append(reqAddrs, a.Addr)
	}

	return reqAddrs
}

// allocateIANA allocates or confirms the lease of a single identity
// association and returns the IA_NA option for the reply: an IAADDR binding
// on success and a NoAddrsAvail status when the pool is exhausted.  leasesMu
// must be locked.
func (srv *ServerV6) allocateIANA(
	ctx context.Context,
	duid clientKey,
	ia dhcpmsg6.IANA,
) (o dhcpmsg6.Option) {
	l, err := srv.allocateLease(duid, ia.IAID, srv.requestedAddrs(ctx, ia))
	if err != nil {
		srv.logger.DebugContext(ctx, "ia_na got no lease", "iaid", ia.IAID, "err", err)

		status := dhcpmsg6.Status{Code: dhcpmsg6.StatusNoAddrsAvail, Message: "no addresses available"}

		return srv.newIANA(ia.IAID, dhcpmsg6.Options{status.Encode()})
	}

	srv.logger.DebugContext(ctx, "bound", "ip", l.IP, "iaid", ia.IAID)

	status := dhcpmsg6.Status{Code: dhcpmsg6.StatusSuccess, Message: "address bound"}

	return srv.newIANA(ia.IAID, dhcpmsg6.Options{srv.newIAAddr(l.IP), status.Encode()})
}

// advertiseIANA picks the address a subsequent request would bind for the
// identity association and returns the IA_NA option advertising it.  Nothing
// is committed to the lease table.  leasesMu must be locked.
func (srv *ServerV6) advertiseIANA(
	ctx context.Context,
	duid clientKey,
	ia dhcpmsg6.IANA,
) (o dhcpmsg6.Option) {
	ip, err := srv.chooseAddr(duid, ia.IAID, srv.requestedAddrs(ctx, ia))
	if err != nil {
		srv.logger.DebugContext(ctx, "ia_na got no address", "iaid", ia.IAID, "err", err)

		status := dhcpmsg6.Status{Code: dhcpmsg6.StatusNoAddrsAvail, Message: "no addresses available"}

		return srv.newIANA(ia.IAID, dhcpmsg6.Options{status.Encode()})
	}

	srv.logger.DebugContext(ctx, "advertising", "ip", ip, "iaid", ia.IAID)

	status := dhcpmsg6.Status{Code: dhcpmsg6.StatusSuccess, Message: "address available"}

	return srv.newIANA(ia.IAID, dhcpmsg6.Options{srv.newIAAddr(ip), status.Encode()})
}

// newReply returns a reply message of the given type with the transaction ID
// echoed verbatim and the client and server identities attached.  duid may be
// empty when the request carried no client identifier.
func (srv *ServerV6) newReply(
	msg *dhcpmsg6.Message,
	typ dhcpmsg6.MsgType,
	duid []byte,
) (reply *dhcpmsg6.Message) {
	reply = &dhcpmsg6.Message{
		Type: typ,
		TxID: msg.TxID,
	}

	if len(duid) > 0 {
		reply.Options = append(reply.Options, dhcpmsg6.Option{
			Code: dhcpmsg6.OptionClientID,
			Data: duid,
		})
	}

	reply.Options = append(reply.Options, dhcpmsg6.Option{
		Code: dhcpmsg6.OptionServerID,
		Data: srv.serverDUID,
	})

	return reply
}

// newIANA returns the IA_NA reply option for the given identity association
// with the common T1 and T2 timers and the given sub-options.
func (srv *ServerV6) newIANA(iaid uint32, sub dhcpmsg6.Options) (o dhcpmsg6.Option) {
	ttl := uint32(srv.leaseTTL.Seconds())

	return dhcpmsg6.IANA{
		IAID:    iaid,
		T1:      ttl / 2,
		T2:      ttl * 4 / 5,
		Options: sub,
	}.Encode()
}

// newIAAddr returns the IAADDR sub-option binding ip with the configured
// lifetimes.
func (srv *ServerV6) newIAAddr(ip netip.Addr) (o dhcpmsg6.Option) {
	ttl := uint32(srv.leaseTTL.Seconds())

	return dhcpmsg6.IAAddr{
		Addr:      ip,
		Preferred: ttl,
		Valid:     ttl,
	}.Encode()
}

// appendConfOptions appends the configuration options to reply: the DNS
// resolvers and the explicitly configured extras.
func (srv *ServerV6) appendConfOptions(reply *dhcpmsg6.Message) {
	if len(srv.dnsServers) > 0 {
		reply.Options = append(reply.Options, dhcpmsg6.NewDNSServers(srv.dnsServers))
	}

	reply.Options = append(reply.Options, srv.extraOpts...)
}

// newResponse serializes reply for delivery to peer.  DHCPv6 responses are
// always unicast to the link-local address the request came from.
func (srv *ServerV6) newResponse(reply *dhcpmsg6.Message, peer netip.AddrPort) (resp Response) {
	if peer.IsValid() && peer.Port() == 0 {
		peer = netip.AddrPortFrom(peer.Addr(), ClientPortV6)
	}

	return Response{
		Data: reply.Bytes(),
		Peer: peer,
	}
}
