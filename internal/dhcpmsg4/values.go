package dhcpmsg4

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
)

// ErrBadOptionValue is returned by [DecodeValue] when the raw data of an
// option doesn't satisfy the length or arity rules of its kind.
const ErrBadOptionValue errors.Error = "bad option value"

// Kind is the decoded kind of a DHCPv4 option value.
type Kind uint8

// Option value kinds.
const (
	KindUnknown Kind = iota
	KindIP
	KindIPList
	KindIPPairs
	KindU8
	KindU16
	KindU32
	KindI32
	KindFlag
	KindText
	KindOctets
	KindU16List
	KindMsgType
	KindClientID
	KindRoutes
)

// KindOf returns the kind of values carried by the option with the given
// code.  Unrecognised codes map to [KindUnknown].
func KindOf(code OptionCode) (k Kind) {
	switch code {
	case OptionSubnetMask, OptionBroadcastAddress, OptionRouterSolicitationAddr,
		OptionRequestedIP, OptionServerIdentifier:
		return KindIP
	case OptionTimeOffset:
		return KindI32
	case OptionRouter, OptionTimeServer, OptionNameServer, OptionDomainNameServer,
		OptionLogServer, OptionQuoteServer, OptionLPRServer, OptionImpressServer,
		OptionResourceLocationServer, OptionNISServers, OptionNTPServers,
		OptionNetBIOSNameServer, OptionNetBIOSDatagramServer,
		OptionXWindowFontServer, OptionXWindowDisplayManager, OptionNISPlusServers,
		OptionMobileIPHomeAgent, OptionSMTPServer, OptionPOP3Server,
		OptionNNTPServer, OptionWWWServer, OptionFingerServer, OptionIRCServer,
		OptionStreetTalkServer, OptionSTDAServer:
		return KindIPList
	case OptionHostName, OptionMeritDumpFile, OptionDomainName, OptionRootPath,
		OptionExtensionsPath, OptionNISDomain, OptionVendorSpecific,
		OptionNetBIOSScope, OptionMessage, OptionNetWareIPDomain,
		OptionNetWareIPInformation, OptionNISPlusDomain, OptionTFTPServerName,
		OptionBootFileName, OptionURI, OptionTZName:
		return KindText
	case OptionBootFileSize, OptionMaxDatagramReassembly, OptionInterfaceMTU,
		OptionMaxMessageSize:
		return KindU16
	case OptionIPForwarding, OptionNonLocalSourceRouting, OptionAllSubnetsLocal,
		OptionPerformMaskDiscovery, OptionMaskSupplier, OptionPerformRouterDiscovery,
		OptionTrailerEncapsulation, OptionEthernetEncapsulation,
		OptionTCPKeepaliveGarbage:
		return KindFlag
	case OptionPolicyFilter, OptionStaticRoute:
		return KindIPPairs
	case OptionDefaultIPTTL, OptionTCPDefaultTTL, OptionNetBIOSNodeType,
		OptionOverload:
		return KindU8
	case OptionPathMTUAgingTimeout, OptionARPCacheTimeout,
		OptionTCPKeepaliveInterval, OptionLeaseTime, OptionRenewalTime,
		OptionRebindingTime:
		return KindU32
	case OptionPathMTUPlateauTable:
		return KindU16List
	case OptionMessageType:
		return KindMsgType
	case OptionParameterRequestList, OptionVendorClassIdentifier:
		return KindOctets
	case OptionClientIdentifier:
		return KindClientID
	case OptionClasslessStaticRoute:
		return KindRoutes
	default:
		return KindUnknown
	}
}

// Value is a decoded DHCPv4 option value.  The concrete types are [IP],
// [IPList], [IPPairs], [U8], [U16], [U32], [I32], [Flag], [Text], [Octets],
// [U16List], [MessageType], [ClientID], [Routes], and [Unknown].
type Value interface {
	// appendData appends the wire encoding of the value to data.
	appendData(data []byte) (res []byte)
}

// IP is a single IPv4 address value.
type IP netip.Addr

// appendData implements the [Value] interface for IP.
func (v IP) appendData(data []byte) (res []byte) {
	a := netip.Addr(v).As4()

	return append(data, a[:]...)
}

// IPList is a list of IPv4 addresses.
type IPList []netip.Addr

// appendData implements the [Value] interface for IPList.
func (v IPList) appendData(data []byte) (res []byte) {
	for _, ip := range v {
		a := ip.As4()
		data = append(data, a[:]...)
	}

	return data
}

// IPPair is a pair of an IPv4 address and an IPv4 mask.
type IPPair [2]netip.Addr

// IPPairs is a list of address-mask pairs.
type IPPairs []IPPair

// appendData implements the [Value] interface for IPPairs.
func (v IPPairs) appendData(data []byte) (res []byte) {
	for _, p := range v {
		a, m := p[0].As4(), p[1].As4()
		data = append(data, a[:]...)
		data = append(data, m[:]...)
	}

	return data
}

// U8 is a single-byte integer value.
type U8 uint8

// appendData implements the [Value] interface for U8.
func (v U8) appendData(data []byte) (res []byte) { return append(data, byte(v)) }

// U16 is a 16-bit big-endian integer value.
type U16 uint16

// appendData implements the [Value] interface for U16.
func (v U16) appendData(data []byte) (res []byte) {
	return binary.BigEndian.AppendUint16(data, uint16(v))
}

// U32 is a 32-bit big-endian integer value.
type U32 uint32

// appendData implements the [Value] interface for U32.
func (v U32) appendData(data []byte) (res []byte) {
	return binary.BigEndian.AppendUint32(data, uint32(v))
}

// I32 is a 32-bit big-endian signed integer value.
type I32 int32

// appendData implements the [Value] interface for I32.
func (v I32) appendData(data []byte) (res []byte) {
	return binary.BigEndian.AppendUint32(data, uint32(v))
}

// Flag is a single-byte boolean value.
type Flag bool

// appendData implements the [Value] interface for Flag.
func (v Flag) appendData(data []byte) (res []byte) {
	if v {
		return append(data, 1)
	}

	return append(data, 0)
}

// Text is a UTF-8 string value.
type Text string

// appendData implements the [Value] interface for Text.
func (v Text) appendData(data []byte) (res []byte) { return append(data, v...) }

// Octets is a list of single-byte values.
type Octets []byte

// appendData implements the [Value] interface for Octets.
func (v Octets) appendData(data []byte) (res []byte) { return append(data, v...) }

// U16List is a list of 16-bit big-endian integers, such as the MTU plateau
// table.
type U16List []uint16

// appendData implements the [Value] interface for U16List.
func (v U16List) appendData(data []byte) (res []byte) {
	for _, u := range v {
		data = binary.BigEndian.AppendUint16(data, u)
	}

	return data
}

// appendData implements the [Value] interface for MessageType.
func (v MessageType) appendData(data []byte) (res []byte) { return append(data, byte(v)) }

// ClientID is the value of the client-identifier option: a hardware type
// octet followed by the identifier bytes.
type ClientID struct {
	ID    []byte
	HType uint8
}

// appendData implements the [Value] interface for ClientID.
func (v ClientID) appendData(data []byte) (res []byte) {
	data = append(data, v.HType)

	return append(data, v.ID...)
}

// Unknown is the raw value of an option this package has no kind for.
type Unknown []byte

// appendData implements the [Value] interface for Unknown.
func (v Unknown) appendData(data []byte) (res []byte) { return append(data, v...) }

// Route is a single classless static route: a destination prefix and the
// router to reach it through.
type Route struct {
	Prefix netip.Prefix
	Router netip.Addr
}

// Routes is the value of the classless-static-route option.
type Routes []Route

// appendData implements the [Value] interface for Routes.  Each route is
// encoded as the prefix length, the significant octets of the destination,
// and the router address.
//
// See https://datatracker.ietf.org/doc/html/rfc3442.
func (v Routes) appendData(data []byte) (res []byte) {
	for _, rt := range v {
		bits := rt.Prefix.Bits()
		data = append(data, byte(bits))

		dst := rt.Prefix.Masked().Addr().As4()
		data = append(data, dst[:(bits+7)/8]...)

		router := rt.Router.As4()
		data = append(data, router[:]...)
	}

	return data
}

// NewOption encodes v as the option with the given code.
func NewOption(code OptionCode, v Value) (o Option) {
	return Option{
		Code: code,
		Data: v.appendData(nil),
	}
}

// DecodeValue decodes the raw data of the option with the given code into a
// typed value according to the kind table.  Codes with no known kind decode
// into [Unknown] without validation.
func DecodeValue(code OptionCode, data []byte) (v Value, err error) {
	defer func() { err = errors.Annotate(err, "option %d: %w", code) }()

	switch KindOf(code) {
	case KindIP:
		if len(data) != 4 {
			return nil, fmt.Errorf("%w: want 4 bytes, got %d", ErrBadOptionValue, len(data))
		}

		return IP(netip.AddrFrom4([4]byte(data))), nil
	case KindIPList:
		return decodeIPList(data)
	case KindIPPairs:
		return decodeIPPairs(data)
	case KindU8:
		if len(data) != 1 {
			return nil, fmt.Errorf("%w: want 1 byte, got %d", ErrBadOptionValue, len(data))
		}

		return U8(data[0]), nil
	case KindU16:
		if len(data) != 2 {
			return nil, fmt.Errorf("%w: want 2 bytes, got %d", ErrBadOptionValue, len(data))
		}

		return U16(binary.BigEndian.Uint16(data)), nil
	case KindU32:
		if len(data) != 4 {
			return nil, fmt.Errorf("%w: want 4 bytes, got %d", ErrBadOptionValue, len(data))
		}

		return U32(binary.BigEndian.Uint32(data)), nil
	case KindI32:
		if len(data) != 4 {
			return nil, fmt.Errorf("%w: want 4 bytes, got %d", ErrBadOptionValue, len(data))
		}

		return I32(binary.BigEndian.Uint32(data)), nil
	case KindFlag:
		if len(data) != 1 || data[0] > 1 {
			return nil, fmt.Errorf("%w: want a single 0 or 1", ErrBadOptionValue)
		}

		return Flag(data[0] == 1), nil
	case KindText:
		return Text(data), nil
	case KindOctets:
		return Octets(data), nil
	case KindU16List:
		return decodeU16List(data)
	case KindMsgType:
		if len(data) == 1 {
			t := MessageType(data[0])
			if t >= MessageTypeDiscover && t <= MessageTypeInform {
				return t, nil
			}
		}

		return nil, fmt.Errorf("%w: want a message type in 1..8", ErrBadOptionValue)
	case KindClientID:
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: want at least 2 bytes, got %d", ErrBadOptionValue, len(data))
		}

		return ClientID{HType: data[0], ID: append([]byte{}, data[1:]...)}, nil
	case KindRoutes:
		return decodeRoutes(data)
	default:
		return Unknown(data), nil
	}
}

// decodeIPList decodes a list of IPv4 addresses.
func decodeIPList(data []byte) (v IPList, err error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 4", ErrBadOptionValue, len(data))
	}

	for ; len(data) > 0; data = data[4:] {
		v = append(v, netip.AddrFrom4([4]byte(data)))
	}

	return v, nil
}

// decodeIPPairs decodes a list of address-mask pairs.
func decodeIPPairs(data []byte) (v IPPairs, err error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 8", ErrBadOptionValue, len(data))
	}

	for ; len(data) > 0; data = data[8:] {
		v = append(v, IPPair{
			netip.AddrFrom4([4]byte(data[:4])),
			netip.AddrFrom4([4]byte(data[4:8])),
		})
	}

	return v, nil
}

// decodeU16List decodes a list of 16-bit integers.
func decodeU16List(data []byte) (v U16List, err error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 2", ErrBadOptionValue, len(data))
	}

	for ; len(data) > 0; data = data[2:] {
		v = append(v, binary.BigEndian.Uint16(data))
	}

	return v, nil
}

// decodeRoutes decodes the length-compressed classless-static-route encoding.
// Each entry is the prefix length, ceil(len/8) destination octets, and a
// 4-byte router address.
func decodeRoutes(data []byte) (v Routes, err error) {
	for len(data) > 0 {
		bits := int(data[0])
		if bits > 32 {
			return nil, fmt.Errorf("%w: prefix length %d", ErrBadOptionValue, bits)
		}

		n := (bits + 7) / 8
		if len(data) < 1+n+4 {
			return nil, fmt.Errorf("%w: truncated route entry", ErrBadOptionValue)
		}

		var dst [4]byte
		copy(dst[:], data[1:1+n])

		v = append(v, Route{
			Prefix: netip.PrefixFrom(netip.AddrFrom4(dst), bits),
			Router: netip.AddrFrom4([4]byte(data[1+n : 1+n+4])),
		})

		data = data[1+n+4:]
	}

	return v, nil
}
