package dhcpmsg6_test

import (
	"net/netip"
	"testing"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDUID is the client DUID used in tests.
var testDUID = []byte("test-client-duid")

// testIAID is the identity association ID used in tests.
const testIAID uint32 = 12345

// newTestSolicit returns a valid SOLICIT message for tests.
func newTestSolicit() (msg *dhcpmsg6.Message) {
	ia := dhcpmsg6.IANA{
		IAID: testIAID,
	}

	return &dhcpmsg6.Message{
		Type: dhcpmsg6.MsgTypeSolicit,
		TxID: [3]byte{0x01, 0x02, 0x03},
		Options: dhcpmsg6.Options{
			{Code: dhcpmsg6.OptionClientID, Data: testDUID},
			ia.Encode(),
		},
	}
}

func TestParseMessage_roundTrip(t *testing.T) {
	want := newTestSolicit()

	got, err := dhcpmsg6.ParseMessage(want.Bytes())
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestParseMessage_errors(t *testing.T) {
	valid := newTestSolicit().Bytes()

	testCases := []struct {
		wantErr error
		name    string
		in      []byte
	}{{
		wantErr: dhcpmsg6.ErrShortMessage,
		name:    "short",
		in:      valid[:2],
	}, {
		wantErr: dhcpmsg6.ErrTruncatedOption,
		name:    "trailing_bytes",
		in:      append(append([]byte{}, valid...), 0x00, 0x01),
	}, {
		wantErr: dhcpmsg6.ErrTruncatedOption,
		name:    "truncated_value",
		in:      append(append([]byte{}, valid[:4]...), 0x00, 0x01, 0x00, 0x10, 0xAA),
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := dhcpmsg6.ParseMessage(tc.in)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestParseOptions_empty(t *testing.T) {
	// The recursion base case is an empty remaining buffer.
	opts, err := dhcpmsg6.ParseOptions(nil)
	require.NoError(t, err)

	assert.Empty(t, opts)
}

func TestParseIANA_nested(t *testing.T) {
	addr := dhcpmsg6.IAAddr{
		Addr:      netip.MustParseAddr("2001:db8::1000"),
		Preferred: 3600,
		Valid:     7200,
	}

	status := dhcpmsg6.Status{Code: dhcpmsg6.StatusSuccess, Message: "ok"}

	want := dhcpmsg6.IANA{
		IAID: testIAID,
		T1:   1800,
		T2:   2880,
		Options: dhcpmsg6.Options{
			addr.Encode(),
			status.Encode(),
		},
	}

	o := want.Encode()
	require.Equal(t, dhcpmsg6.OptionIANA, o.Code)

	got, err := dhcpmsg6.ParseIANA(o.Data)
	require.NoError(t, err)

	assert.Equal(t, want, got)

	addrs, err := got.Addrs()
	require.NoError(t, err)
	require.Len(t, addrs, 1)

	gotAddr := addrs[0]
	assert.Equal(t, addr.Addr, gotAddr.Addr)
	assert.Equal(t, addr.Preferred, gotAddr.Preferred)
	assert.Equal(t, addr.Valid, gotAddr.Valid)

	st, ok, err := got.Options.Status()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, status, st)
}

func TestParseIANA_errors(t *testing.T) {
	_, err := dhcpmsg6.ParseIANA([]byte{0x00})
	assert.ErrorIs(t, err, dhcpmsg6.ErrBadOptionValue)

	// A truncated sub-option stream inside the IA is fatal.
	bad := make([]byte, 12)
	bad = append(bad, 0x00, 0x05, 0x00, 0xFF)

	_, err = dhcpmsg6.ParseIANA(bad)
	assert.ErrorIs(t, err, dhcpmsg6.ErrTruncatedOption)
}

func TestOptions_lookups(t *testing.T) {
	msg := newTestSolicit()

	duid, ok := msg.Options.ClientID()
	require.True(t, ok)
	assert.Equal(t, testDUID, duid)

	_, ok = msg.Options.ServerID()
	assert.False(t, ok)

	ias, err := msg.Options.IANAs()
	require.NoError(t, err)
	require.Len(t, ias, 1)
	assert.Equal(t, testIAID, ias[0].IAID)
}

func TestOptions_oro(t *testing.T) {
	o := dhcpmsg6.NewORO(dhcpmsg6.OptionDNSServers, dhcpmsg6.OptionDomainList)

	opts := dhcpmsg6.Options{o}
	assert.Equal(t, []dhcpmsg6.OptionCode{
		dhcpmsg6.OptionDNSServers,
		dhcpmsg6.OptionDomainList,
	}, opts.RequestedCodes())
}

func TestOptions_dnsServers(t *testing.T) {
	want := []netip.Addr{
		netip.MustParseAddr("2001:4860:4860::8888"),
		netip.MustParseAddr("2001:4860:4860::8844"),
	}

	opts := dhcpmsg6.Options{dhcpmsg6.NewDNSServers(want)}

	got, ok := opts.DNSServers()
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestNewDUIDUUID(t *testing.T) {
	duid := dhcpmsg6.NewDUIDUUID()

	require.Len(t, duid, 18)
	assert.Equal(t, []byte{0x00, 0x04}, duid[:2])

	assert.NotEqual(t, duid, dhcpmsg6.NewDUIDUUID())
}
