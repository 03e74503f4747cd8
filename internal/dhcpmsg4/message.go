// Package dhcpmsg4 contains the wire codec for DHCPv4 messages as defined by
// RFC 2131 and RFC 2132: the 236-byte fixed header, the magic-cookie framing,
// the TLV option stream, and the typed option value layer.
//
// The codec is transport-agnostic and performs no I/O.  Parsing failures are
// returned as values and are expected to make the caller drop the datagram
// without a response.
package dhcpmsg4

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
)

// MagicCookie is the constant separating the fixed DHCPv4 header from the
// option stream.
//
// See https://datatracker.ietf.org/doc/html/rfc2131#section-3.
var MagicCookie = [4]byte{0x63, 0x82, 0x53, 0x63}

// Opcodes of the op field of the DHCPv4 header.
const (
	OpBootRequest uint8 = 1
	OpBootReply   uint8 = 2
)

// FlagBroadcast is the broadcast bit of the flags field.  A client sets it
// when it cannot receive unicast datagrams before it has an address.
const FlagBroadcast uint16 = 1 << 15

// Lengths of the fixed-size fields of the DHCPv4 header.
const (
	// headerLen is the length of the fixed DHCPv4 header, up to and not
	// including the magic cookie.
	headerLen = 236

	// MinMessageLen is the minimum length of a valid DHCPv4 message: the
	// fixed header followed by the magic cookie.
	MinMessageLen = headerLen + len(MagicCookie)

	// CHAddrLen is the length of the chaddr field.
	CHAddrLen = 16

	// SNameLen is the length of the sname field.
	SNameLen = 64

	// FileLen is the length of the file field.
	FileLen = 128
)

// Parsing errors.
const (
	// ErrShortMessage is returned when the input is shorter than the fixed
	// header and the magic cookie.
	ErrShortMessage errors.Error = "message too short"

	// ErrBadMagicCookie is returned when the four bytes after the fixed
	// header are not the DHCP magic cookie.
	ErrBadMagicCookie errors.Error = "bad magic cookie"

	// ErrTruncatedOption is returned when an option length field points past
	// the end of the buffer.
	ErrTruncatedOption errors.Error = "truncated option"
)

// Message is a DHCPv4 message.  The fixed-size string fields sname and file
// are kept as raw padded arrays so that serialization is exact.
type Message struct {
	Op    uint8
	HType uint8
	HLen  uint8
	Hops  uint8

	XID uint32

	Secs  uint16
	Flags uint16

	CIAddr netip.Addr
	YIAddr netip.Addr
	SIAddr netip.Addr
	GIAddr netip.Addr

	CHAddr [CHAddrLen]byte
	SName  [SNameLen]byte
	File   [FileLen]byte

	Options Options
}

// ParseMessage parses a DHCPv4 message from data.  data must contain at least
// the fixed header and the magic cookie.  Bytes after the end option are
// ignored.  When the option-overload option is present, the file and sname
// fields are reparsed as option streams and their options are appended to
// [Message.Options].
func ParseMessage(data []byte) (msg *Message, err error) {
	defer func() { err = errors.Annotate(err, "parsing dhcpv4 message: %w") }()

	if len(data) < MinMessageLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(data))
	}

	be := binary.BigEndian
	msg = &Message{
		Op:    data[0],
		HType: data[1],
		HLen:  data[2],
		Hops:  data[3],
		XID:   be.Uint32(data[4:8]),
		Secs:  be.Uint16(data[8:10]),
		Flags: be.Uint16(data[10:12]),

		CIAddr: netip.AddrFrom4([4]byte(data[12:16])),
		YIAddr: netip.AddrFrom4([4]byte(data[16:20])),
		SIAddr: netip.AddrFrom4([4]byte(data[20:24])),
		GIAddr: netip.AddrFrom4([4]byte(data[24:28])),
	}

	copy(msg.CHAddr[:], data[28:44])
	copy(msg.SName[:], data[44:108])
	copy(msg.File[:], data[108:236])

	if [4]byte(data[headerLen:MinMessageLen]) != MagicCookie {
		return nil, ErrBadMagicCookie
	}

	msg.Options, err = parseOptions(data[MinMessageLen:])
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	err = msg.reparseOverload()
	if err != nil {
		return nil, fmt.Errorf("option overload: %w", err)
	}

	return msg, nil
}

// reparseOverload processes the option-overload option, appending the options
// parsed from the file and sname fields to msg.Options.
//
// See https://datatracker.ietf.org/doc/html/rfc2132#section-9.3.
func (msg *Message) reparseOverload() (err error) {
	data, ok := msg.Options.First(OptionOverload)
	if !ok || len(data) != 1 {
		return nil
	}

	const (
		overloadFile  = 1
		overloadSName = 2
		overloadBoth  = 3
	)

	var opts Options
	if v := data[0]; v == overloadFile || v == overloadBoth {
		opts, err = parseOptions(msg.File[:])
		if err != nil {
			return fmt.Errorf("file field: %w", err)
		}

		msg.Options = append(msg.Options, opts...)
	}

	if v := data[0]; v == overloadSName || v == overloadBoth {
		opts, err = parseOptions(msg.SName[:])
		if err != nil {
			return fmt.Errorf("sname field: %w", err)
		}

		msg.Options = append(msg.Options, opts...)
	}

	return nil
}

// parseOptions parses a TLV option stream.  Pad options are skipped, the end
// option terminates parsing, and anything after it is ignored.  A stream
// without an end option is accepted, since the overloaded file and sname
// fields are not required to carry one.
func parseOptions(data []byte) (opts Options, err error) {
	for i := 0; i < len(data); {
		code := OptionCode(data[i])
		i++

		switch code {
		case OptionPad:
			continue
		case OptionEnd:
			return opts, nil
		}

		if i >= len(data) {
			return nil, fmt.Errorf("%w: code %d has no length", ErrTruncatedOption, code)
		}

		l := int(data[i])
		i++

		if i+l > len(data) {
			return nil, fmt.Errorf("%w: code %d wants %d bytes", ErrTruncatedOption, code, l)
		}

		opts = append(opts, Option{
			Code: code,
			// Copy, so that the message doesn't alias the datagram buffer.
			Data: append([]byte{}, data[i:i+l]...),
		})
		i += l
	}

	return opts, nil
}

// Bytes returns the wire encoding of msg: the fixed header, the magic cookie,
// each option as a TLV, and the end option.
func (msg *Message) Bytes() (data []byte) {
	data = make([]byte, MinMessageLen, MinMessageLen+msg.Options.dataLen()+1)

	be := binary.BigEndian
	data[0], data[1], data[2], data[3] = msg.Op, msg.HType, msg.HLen, msg.Hops
	be.PutUint32(data[4:8], msg.XID)
	be.PutUint16(data[8:10], msg.Secs)
	be.PutUint16(data[10:12], msg.Flags)

	putAddr4(data[12:16], msg.CIAddr)
	putAddr4(data[16:20], msg.YIAddr)
	putAddr4(data[20:24], msg.SIAddr)
	putAddr4(data[24:28], msg.GIAddr)

	copy(data[28:44], msg.CHAddr[:])
	copy(data[44:108], msg.SName[:])
	copy(data[108:236], msg.File[:])
	copy(data[headerLen:], MagicCookie[:])

	for _, o := range msg.Options {
		data = append(data, byte(o.Code), byte(len(o.Data)))
		data = append(data, o.Data...)
	}

	return append(data, byte(OptionEnd))
}

// putAddr4 writes the 4-byte form of addr into b.  An invalid addr is written
// as the unspecified address.
func putAddr4(b []byte, addr netip.Addr) {
	if addr.Is4() {
		a := addr.As4()
		copy(b, a[:])
	}
}

// ClientKey returns the client identity key of msg: the client-identifier
// option when the client sent one, and the first hlen bytes of chaddr
// otherwise.
//
// See https://datatracker.ietf.org/doc/html/rfc2132#section-9.14.
func (msg *Message) ClientKey() (key []byte) {
	if data, ok := msg.Options.First(OptionClientIdentifier); ok && len(data) > 0 {
		return data
	}

	hlen := int(msg.HLen)
	if hlen > CHAddrLen {
		hlen = CHAddrLen
	}

	return msg.CHAddr[:hlen]
}

// HWAddr returns the hardware address of msg, that is the first hlen bytes of
// chaddr.
func (msg *Message) HWAddr() (mac []byte) {
	hlen := int(msg.HLen)
	if hlen > CHAddrLen {
		hlen = CHAddrLen
	}

	return msg.CHAddr[:hlen]
}
