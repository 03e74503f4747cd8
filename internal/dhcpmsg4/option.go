package dhcpmsg4

import (
	"encoding/binary"
	"net/netip"
)

// OptionCode is a single-byte DHCPv4 option code.
type OptionCode uint8

// Option codes of RFC 2132 handled by this package.  Codes 0 and 255 are
// framing markers and never appear as structured options.
const (
	OptionPad                     OptionCode = 0
	OptionSubnetMask              OptionCode = 1
	OptionTimeOffset              OptionCode = 2
	OptionRouter                  OptionCode = 3
	OptionTimeServer              OptionCode = 4
	OptionNameServer              OptionCode = 5
	OptionDomainNameServer        OptionCode = 6
	OptionLogServer               OptionCode = 7
	OptionQuoteServer             OptionCode = 8
	OptionLPRServer               OptionCode = 9
	OptionImpressServer           OptionCode = 10
	OptionResourceLocationServer  OptionCode = 11
	OptionHostName                OptionCode = 12
	OptionBootFileSize            OptionCode = 13
	OptionMeritDumpFile           OptionCode = 14
	OptionDomainName              OptionCode = 15
	OptionSwapServer              OptionCode = 16
	OptionRootPath                OptionCode = 17
	OptionExtensionsPath          OptionCode = 18
	OptionIPForwarding            OptionCode = 19
	OptionNonLocalSourceRouting   OptionCode = 20
	OptionPolicyFilter            OptionCode = 21
	OptionMaxDatagramReassembly   OptionCode = 22
	OptionDefaultIPTTL            OptionCode = 23
	OptionPathMTUAgingTimeout     OptionCode = 24
	OptionPathMTUPlateauTable     OptionCode = 25
	OptionInterfaceMTU            OptionCode = 26
	OptionAllSubnetsLocal         OptionCode = 27
	OptionBroadcastAddress        OptionCode = 28
	OptionPerformMaskDiscovery    OptionCode = 29
	OptionMaskSupplier            OptionCode = 30
	OptionPerformRouterDiscovery  OptionCode = 31
	OptionRouterSolicitationAddr  OptionCode = 32
	OptionStaticRoute             OptionCode = 33
	OptionTrailerEncapsulation    OptionCode = 34
	OptionARPCacheTimeout         OptionCode = 35
	OptionEthernetEncapsulation   OptionCode = 36
	OptionTCPDefaultTTL           OptionCode = 37
	OptionTCPKeepaliveInterval    OptionCode = 38
	OptionTCPKeepaliveGarbage     OptionCode = 39
	OptionNISDomain               OptionCode = 40
	OptionNISServers              OptionCode = 41
	OptionNTPServers              OptionCode = 42
	OptionVendorSpecific          OptionCode = 43
	OptionNetBIOSNameServer       OptionCode = 44
	OptionNetBIOSDatagramServer   OptionCode = 45
	OptionNetBIOSNodeType         OptionCode = 46
	OptionNetBIOSScope            OptionCode = 47
	OptionXWindowFontServer       OptionCode = 48
	OptionXWindowDisplayManager   OptionCode = 49
	OptionRequestedIP             OptionCode = 50
	OptionLeaseTime               OptionCode = 51
	OptionOverload                OptionCode = 52
	OptionMessageType             OptionCode = 53
	OptionServerIdentifier        OptionCode = 54
	OptionParameterRequestList    OptionCode = 55
	OptionMessage                 OptionCode = 56
	OptionMaxMessageSize          OptionCode = 57
	OptionRenewalTime             OptionCode = 58
	OptionRebindingTime           OptionCode = 59
	OptionVendorClassIdentifier   OptionCode = 60
	OptionClientIdentifier        OptionCode = 61
	OptionNetWareIPDomain         OptionCode = 62
	OptionNetWareIPInformation    OptionCode = 63
	OptionNISPlusDomain           OptionCode = 64
	OptionNISPlusServers          OptionCode = 65
	OptionTFTPServerName          OptionCode = 66
	OptionBootFileName            OptionCode = 67
	OptionMobileIPHomeAgent       OptionCode = 68
	OptionSMTPServer              OptionCode = 69
	OptionPOP3Server              OptionCode = 70
	OptionNNTPServer              OptionCode = 71
	OptionWWWServer               OptionCode = 72
	OptionFingerServer            OptionCode = 73
	OptionIRCServer               OptionCode = 74
	OptionStreetTalkServer        OptionCode = 75
	OptionSTDAServer              OptionCode = 76
	OptionURI                     OptionCode = 100
	OptionTZName                  OptionCode = 101
	OptionClasslessStaticRoute    OptionCode = 121
	OptionEnd                     OptionCode = 255
)

// MessageType is the value of the DHCP message type option.
type MessageType uint8

// DHCPv4 message types.
//
// See https://datatracker.ietf.org/doc/html/rfc2132#section-9.6.
const (
	MessageTypeDiscover MessageType = 1
	MessageTypeOffer    MessageType = 2
	MessageTypeRequest  MessageType = 3
	MessageTypeDecline  MessageType = 4
	MessageTypeACK      MessageType = 5
	MessageTypeNAK      MessageType = 6
	MessageTypeRelease  MessageType = 7
	MessageTypeInform   MessageType = 8
)

// Option is a single DHCPv4 option as it appears on the wire.  The wire
// length is the length of Data.
type Option struct {
	Data []byte
	Code OptionCode
}

// Options is a list of DHCPv4 options.  Duplicate codes are preserved in
// their wire order.
type Options []Option

// First returns the data of the first option with the given code.
func (opts Options) First(code OptionCode) (data []byte, ok bool) {
	for _, o := range opts {
		if o.Code == code {
			return o.Data, true
		}
	}

	return nil, false
}

// Has returns true if opts contains an option with the given code.
func (opts Options) Has(code OptionCode) (ok bool) {
	_, ok = opts.First(code)

	return ok
}

// dataLen returns the total wire length of the TLV encodings of opts.
func (opts Options) dataLen() (n int) {
	for _, o := range opts {
		n += 2 + len(o.Data)
	}

	return n
}

// MessageType returns the message type of the message carrying opts, if
// present and valid.
func (opts Options) MessageType() (typ MessageType, ok bool) {
	data, ok := opts.First(OptionMessageType)
	if !ok || len(data) != 1 {
		return 0, false
	}

	typ = MessageType(data[0])
	if typ < MessageTypeDiscover || typ > MessageTypeInform {
		return 0, false
	}

	return typ, true
}

// IP returns the option with the given code decoded as a single IPv4 address.
func (opts Options) IP(code OptionCode) (ip netip.Addr, ok bool) {
	data, ok := opts.First(code)
	if !ok || len(data) != 4 {
		return netip.Addr{}, false
	}

	return netip.AddrFrom4([4]byte(data)), true
}

// Uint32 returns the option with the given code decoded as a big-endian
// 32-bit integer.
func (opts Options) Uint32(code OptionCode) (v uint32, ok bool) {
	data, ok := opts.First(code)
	if !ok || len(data) != 4 {
		return 0, false
	}

	return binary.BigEndian.Uint32(data), true
}

// Text returns the option with the given code decoded as a string.
func (opts Options) Text(code OptionCode) (s string, ok bool) {
	data, ok := opts.First(code)
	if !ok || len(data) == 0 {
		return "", false
	}

	return string(data), true
}

// ParameterRequestList returns the codes of the parameter request list
// option, if any.
func (opts Options) ParameterRequestList() (codes []OptionCode) {
	data, ok := opts.First(OptionParameterRequestList)
	if !ok {
		return nil
	}

	codes = make([]OptionCode, 0, len(data))
	for _, c := range data {
		codes = append(codes, OptionCode(c))
	}

	return codes
}
