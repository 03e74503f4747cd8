package dhcpmsg6

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
)

// IANA is an identity association for non-temporary addresses: the container
// option carrying an IAID, the T1 and T2 timers, and nested sub-options,
// typically [IAAddr] and [Status] ones.
//
// See https://datatracker.ietf.org/doc/html/rfc3315#section-22.4.
type IANA struct {
	Options Options
	IAID    uint32
	T1      uint32
	T2      uint32
}

// ianaHeaderLen is the length of the fixed part of the IA_NA option data.
const ianaHeaderLen = 12

// ParseIANA parses the data of an IA_NA option, including its nested
// sub-options.
func ParseIANA(data []byte) (ia IANA, err error) {
	defer func() { err = errors.Annotate(err, "parsing ia_na: %w") }()

	if len(data) < ianaHeaderLen {
		return IANA{}, fmt.Errorf("%w: %d bytes", ErrBadOptionValue, len(data))
	}

	be := binary.BigEndian
	ia = IANA{
		IAID: be.Uint32(data[0:4]),
		T1:   be.Uint32(data[4:8]),
		T2:   be.Uint32(data[8:12]),
	}

	ia.Options, err = ParseOptions(data[ianaHeaderLen:])
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return IANA{}, err
	}

	return ia, nil
}

// Encode returns ia as a wire option.
func (ia IANA) Encode() (o Option) {
	be := binary.BigEndian
	data := make([]byte, ianaHeaderLen, ianaHeaderLen+ia.Options.dataLen())
	be.PutUint32(data[0:4], ia.IAID)
	be.PutUint32(data[4:8], ia.T1)
	be.PutUint32(data[8:12], ia.T2)

	return Option{Code: OptionIANA, Data: ia.Options.appendTo(data)}
}

// Addrs returns the addresses of the nested IAADDR sub-options of ia.
func (ia IANA) Addrs() (addrs []IAAddr, err error) {
	for _, o := range ia.Options {
		if o.Code != OptionIAAddr {
			continue
		}

		var a IAAddr
		a, err = ParseIAAddr(o.Data)
		if err != nil {
			// Don't wrap the error since it's informative enough as is.
			return nil, err
		}

		addrs = append(addrs, a)
	}

	return addrs, nil
}

// IANAs returns every IA_NA option of opts, parsed.
func (opts Options) IANAs() (ias []IANA, err error) {
	for _, o := range opts {
		if o.Code != OptionIANA {
			continue
		}

		var ia IANA
		ia, err = ParseIANA(o.Data)
		if err != nil {
			// Don't wrap the error since it's informative enough as is.
			return nil, err
		}

		ias = append(ias, ia)
	}

	return ias, nil
}

// IAAddr is a single address binding inside an identity association, with its
// preferred and valid lifetimes in seconds.
//
// See https://datatracker.ietf.org/doc/html/rfc3315#section-22.6.
type IAAddr struct {
	Options   Options
	Addr      netip.Addr
	Preferred uint32
	Valid     uint32
}

// iaAddrHeaderLen is the length of the fixed part of the IAADDR option data.
const iaAddrHeaderLen = 24

// ParseIAAddr parses the data of an IAADDR option, including its nested
// sub-options.
func ParseIAAddr(data []byte) (a IAAddr, err error) {
	defer func() { err = errors.Annotate(err, "parsing iaaddr: %w") }()

	if len(data) < iaAddrHeaderLen {
		return IAAddr{}, fmt.Errorf("%w: %d bytes", ErrBadOptionValue, len(data))
	}

	be := binary.BigEndian
	a = IAAddr{
		Addr:      netip.AddrFrom16([16]byte(data[:16])),
		Preferred: be.Uint32(data[16:20]),
		Valid:     be.Uint32(data[20:24]),
	}

	a.Options, err = ParseOptions(data[iaAddrHeaderLen:])
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return IAAddr{}, err
	}

	return a, nil
}

// Encode returns a as a wire option.
func (a IAAddr) Encode() (o Option) {
	data := make([]byte, iaAddrHeaderLen, iaAddrHeaderLen+a.Options.dataLen())

	addr := a.Addr.As16()
	copy(data[:16], addr[:])

	be := binary.BigEndian
	be.PutUint32(data[16:20], a.Preferred)
	be.PutUint32(data[20:24], a.Valid)

	return Option{Code: OptionIAAddr, Data: a.Options.appendTo(data)}
}

// StatusCode is a numeric DHCPv6 status.
type StatusCode uint16

// Status codes.
//
// See https://datatracker.ietf.org/doc/html/rfc3315#section-24.4.
const (
	StatusSuccess      StatusCode = 0
	StatusUnspecFail   StatusCode = 1
	StatusNoAddrsAvail StatusCode = 2
	StatusNoBinding    StatusCode = 3
	StatusNotOnLink    StatusCode = 4
	StatusUseMulticast StatusCode = 5
)

// Status is the value of a status-code option: a numeric code and a
// human-readable message.
type Status struct {
	Message string
	Code    StatusCode
}

// ParseStatus parses the data of a status-code option.
func ParseStatus(data []byte) (s Status, err error) {
	if len(data) < 2 {
		return Status{}, fmt.Errorf("parsing status code: %w: %d bytes", ErrBadOptionValue, len(data))
	}

	return Status{
		Code:    StatusCode(binary.BigEndian.Uint16(data[:2])),
		Message: string(data[2:]),
	}, nil
}

// Encode returns s as a wire option.
func (s Status) Encode() (o Option) {
	data := binary.BigEndian.AppendUint16(nil, uint16(s.Code))

	return Option{Code: OptionStatusCode, Data: append(data, s.Message...)}
}

// Status returns the parsed status-code option of opts, if present.  An
// absent status-code option means success.
func (opts Options) Status() (s Status, ok bool, err error) {
	data, ok := opts.First(OptionStatusCode)
	if !ok {
		return Status{}, false, nil
	}

	s, err = ParseStatus(data)
	if err != nil {
		return Status{}, false, err
	}

	return s, true, nil
}
