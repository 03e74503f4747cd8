// Package dhcpmsg6 contains the wire codec for DHCPv6 messages as defined by
// RFC 3315 and RFC 3646: the 4-byte header, the two-plus-two TLV option
// stream, and the recursive identity-association option tree.
//
// Unlike DHCPv4 there are no framing markers: option parsing terminates when
// the remaining buffer is empty, and truncation inside an option is fatal.
package dhcpmsg6

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
)

// MsgType is the type of a DHCPv6 message.
type MsgType uint8

// DHCPv6 message types.
//
// See https://datatracker.ietf.org/doc/html/rfc3315#section-5.3.
const (
	MsgTypeSolicit            MsgType = 1
	MsgTypeAdvertise          MsgType = 2
	MsgTypeRequest            MsgType = 3
	MsgTypeConfirm            MsgType = 4
	MsgTypeRenew              MsgType = 5
	MsgTypeRebind             MsgType = 6
	MsgTypeReply              MsgType = 7
	MsgTypeRelease            MsgType = 8
	MsgTypeDecline            MsgType = 9
	MsgTypeReconfigure        MsgType = 10
	MsgTypeInformationRequest MsgType = 11
	MsgTypeRelayForw          MsgType = 12
	MsgTypeRelayRepl          MsgType = 13
)

// Parsing errors.
const (
	// ErrShortMessage is returned when the input is shorter than the 4-byte
	// header.
	ErrShortMessage errors.Error = "message too short"

	// ErrTruncatedOption is returned when an option length field points past
	// the end of the buffer.
	ErrTruncatedOption errors.Error = "truncated option"
)

// TxIDLen is the length of a DHCPv6 transaction ID.
const TxIDLen = 3

// Message is a DHCPv6 message.
type Message struct {
	Options Options
	TxID    [TxIDLen]byte
	Type    MsgType
}

// ParseMessage parses a DHCPv6 message from data.
func ParseMessage(data []byte) (msg *Message, err error) {
	defer func() { err = errors.Annotate(err, "parsing dhcpv6 message: %w") }()

	if len(data) < 1+TxIDLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(data))
	}

	msg = &Message{
		Type: MsgType(data[0]),
		TxID: [TxIDLen]byte(data[1 : 1+TxIDLen]),
	}

	msg.Options, err = ParseOptions(data[1+TxIDLen:])
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	return msg, nil
}

// Bytes returns the wire encoding of msg.  The caller-controlled option order
// is preserved.
func (msg *Message) Bytes() (data []byte) {
	data = make([]byte, 0, 1+TxIDLen+msg.Options.dataLen())
	data = append(data, byte(msg.Type))
	data = append(data, msg.TxID[:]...)

	return msg.Options.appendTo(data)
}
