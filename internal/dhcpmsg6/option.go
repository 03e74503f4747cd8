package dhcpmsg6

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
)

// OptionCode is a two-byte DHCPv6 option code.
type OptionCode uint16

// Option codes of RFC 3315 and RFC 3646 handled by this package.
const (
	OptionClientID    OptionCode = 1
	OptionServerID    OptionCode = 2
	OptionIANA        OptionCode = 3
	OptionIATA        OptionCode = 4
	OptionIAAddr      OptionCode = 5
	OptionORO         OptionCode = 6
	OptionPreference  OptionCode = 7
	OptionElapsedTime OptionCode = 8
	OptionRelayMsg    OptionCode = 9
	OptionAuth        OptionCode = 11
	OptionUnicast     OptionCode = 12
	OptionStatusCode  OptionCode = 13
	OptionRapidCommit OptionCode = 14
	OptionUserClass   OptionCode = 15
	OptionVendorClass OptionCode = 16
	OptionDNSServers  OptionCode = 23
	OptionDomainList  OptionCode = 24
	OptionIAPD        OptionCode = 25
)

// Option is a single DHCPv6 option as it appears on the wire.  The wire
// length is the length of Data.
type Option struct {
	Data []byte
	Code OptionCode
}

// Options is a list of DHCPv6 options.
type Options []Option

// ParseOptions parses a two-plus-two TLV option stream.  Parsing terminates
// when the remaining buffer is empty; a length field pointing past the end of
// the buffer is fatal.
func ParseOptions(data []byte) (opts Options, err error) {
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: %d trailing bytes", ErrTruncatedOption, len(data))
		}

		be := binary.BigEndian
		code := OptionCode(be.Uint16(data[:2]))
		l := int(be.Uint16(data[2:4]))

		if 4+l > len(data) {
			return nil, fmt.Errorf("%w: code %d wants %d bytes", ErrTruncatedOption, code, l)
		}

		opts = append(opts, Option{
			Code: code,
			// Copy, so that the message doesn't alias the datagram buffer.
			Data: append([]byte{}, data[4:4+l]...),
		})

		data = data[4+l:]
	}

	return opts, nil
}

// appendTo appends the wire encodings of opts to data.
func (opts Options) appendTo(data []byte) (res []byte) {
	be := binary.BigEndian
	for _, o := range opts {
		data = be.AppendUint16(data, uint16(o.Code))
		data = be.AppendUint16(data, uint16(len(o.Data)))
		data = append(data, o.Data...)
	}

	return data
}

// dataLen returns the total wire length of the TLV encodings of opts.
func (opts Options) dataLen() (n int) {
	for _, o := range opts {
		n += 4 + len(o.Data)
	}

	return n
}

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

// ClientID returns the client DUID, if present.
func (opts Options) ClientID() (duid []byte, ok bool) {
	duid, ok = opts.First(OptionClientID)
	if !ok || len(duid) == 0 {
		return nil, false
	}

	return duid, true
}

// ServerID returns the server DUID, if present.
func (opts Options) ServerID() (duid []byte, ok bool) {
	duid, ok = opts.First(OptionServerID)
	if !ok || len(duid) == 0 {
		return nil, false
	}

	return duid, true
}

// RequestedCodes returns the codes of the option-request option, if any.
func (opts Options) RequestedCodes() (codes []OptionCode) {
	data, ok := opts.First(OptionORO)
	if !ok || len(data)%2 != 0 {
		return nil
	}

	for ; len(data) > 0; data = data[2:] {
		codes = append(codes, OptionCode(binary.BigEndian.Uint16(data)))
	}

	return codes
}

// NewORO encodes the option-request option for the given codes.
func NewORO(codes ...OptionCode) (o Option) {
	data := make([]byte, 0, 2*len(codes))
	for _, c := range codes {
		data = binary.BigEndian.AppendUint16(data, uint16(c))
	}

	return Option{Code: OptionORO, Data: data}
}

// ElapsedTime returns the value of the elapsed-time option in hundredths of a
// second, if present and valid.
func (opts Options) ElapsedTime() (hundredths uint16, ok bool) {
	data, ok := opts.First(OptionElapsedTime)
	if !ok || len(data) != 2 {
		return 0, false
	}

	return binary.BigEndian.Uint16(data), true
}

// DNSServers returns the addresses of the recursive DNS servers option, if
// present and valid.
//
// See https://datatracker.ietf.org/doc/html/rfc3646#section-3.
func (opts Options) DNSServers() (srvs []netip.Addr, ok bool) {
	data, has := opts.First(OptionDNSServers)
	if !has || len(data)%16 != 0 {
		return nil, false
	}

	for ; len(data) > 0; data = data[16:] {
		srvs = append(srvs, netip.AddrFrom16([16]byte(data[:16])))
	}

	return srvs, true
}

// NewDNSServers encodes the recursive DNS servers option.
func NewDNSServers(srvs []netip.Addr) (o Option) {
	data := make([]byte, 0, 16*len(srvs))
	for _, ip := range srvs {
		a := ip.As16()
		data = append(data, a[:]...)
	}

	return Option{Code: OptionDNSServers, Data: data}
}

// ErrBadOptionValue is returned when the data of a structured option doesn't
// match its fixed layout.
const ErrBadOptionValue errors.Error = "bad option value"
