package dhcpmsg4_test

import (
	"net/netip"
	"testing"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg4"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testMAC is the client hardware address used in tests.
var testMAC = []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}

// newTestMessage returns a valid request message for tests.
func newTestMessage() (msg *dhcpmsg4.Message) {
	msg = &dhcpmsg4.Message{
		Op:     dhcpmsg4.OpBootRequest,
		HType:  1,
		HLen:   6,
		XID:    0x3903F326,
		Flags:  dhcpmsg4.FlagBroadcast,
		CIAddr: netip.IPv4Unspecified(),
		YIAddr: netip.IPv4Unspecified(),
		SIAddr: netip.IPv4Unspecified(),
		GIAddr: netip.IPv4Unspecified(),
		Options: dhcpmsg4.Options{
			dhcpmsg4.NewOption(dhcpmsg4.OptionMessageType, dhcpmsg4.MessageTypeDiscover),
			dhcpmsg4.NewOption(dhcpmsg4.OptionHostName, dhcpmsg4.Text("client")),
		},
	}

	copy(msg.CHAddr[:], testMAC)

	return msg
}

func TestParseMessage_roundTrip(t *testing.T) {
	want := newTestMessage()

	got, err := dhcpmsg4.ParseMessage(want.Bytes())
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestParseMessage_dupsAndEmpty(t *testing.T) {
	want := newTestMessage()
	want.Options = append(
		want.Options,
		// A zero-length option is legal.
		dhcpmsg4.Option{Code: dhcpmsg4.OptionMeritDumpFile, Data: []byte{}},
		// Duplicate codes are preserved in order.
		dhcpmsg4.NewOption(dhcpmsg4.OptionHostName, dhcpmsg4.Text("again")),
	)

	got, err := dhcpmsg4.ParseMessage(want.Bytes())
	require.NoError(t, err)

	assert.Equal(t, want.Options, got.Options)
}

func TestParseMessage_padding(t *testing.T) {
	msg := newTestMessage()
	data := msg.Bytes()

	// Padding between options must be skipped, and everything after the end
	// option must be ignored.
	data = append(data[:len(data)-1], 0, 0, 0, byte(dhcpmsg4.OptionEnd), 0xDE, 0xAD)

	got, err := dhcpmsg4.ParseMessage(data)
	require.NoError(t, err)

	assert.Equal(t, msg.Options, got.Options)
}

func TestParseMessage_errors(t *testing.T) {
	valid := newTestMessage().Bytes()

	badCookie := append([]byte{}, valid...)
	badCookie[236] = 0x00

	truncLen := append([]byte{}, valid[:dhcpmsg4.MinMessageLen]...)
	truncLen = append(truncLen, byte(dhcpmsg4.OptionHostName))

	truncData := append([]byte{}, valid[:dhcpmsg4.MinMessageLen]...)
	truncData = append(truncData, byte(dhcpmsg4.OptionHostName), 10, 'a')

	testCases := []struct {
		name    string
		in      []byte
		wantErr error
	}{{
		name:    "short",
		in:      valid[:100],
		wantErr: dhcpmsg4.ErrShortMessage,
	}, {
		name:    "bad_cookie",
		in:      badCookie,
		wantErr: dhcpmsg4.ErrBadMagicCookie,
	}, {
		name:    "no_length",
		in:      truncLen,
		wantErr: dhcpmsg4.ErrTruncatedOption,
	}, {
		name:    "truncated_value",
		in:      truncData,
		wantErr: dhcpmsg4.ErrTruncatedOption,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := dhcpmsg4.ParseMessage(tc.in)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestParseMessage_overload(t *testing.T) {
	msg := newTestMessage()
	msg.Options = append(
		msg.Options,
		dhcpmsg4.NewOption(dhcpmsg4.OptionOverload, dhcpmsg4.U8(3)),
	)

	// The overloaded fields carry plain option streams without a cookie.
	copy(msg.File[:], []byte{
		byte(dhcpmsg4.OptionRootPath), 4, '/', 't', 'm', 'p',
		byte(dhcpmsg4.OptionEnd),
	})
	copy(msg.SName[:], []byte{
		byte(dhcpmsg4.OptionDomainName), 3, 'l', 'a', 'n',
		byte(dhcpmsg4.OptionEnd),
	})

	got, err := dhcpmsg4.ParseMessage(msg.Bytes())
	require.NoError(t, err)

	rootPath, ok := got.Options.Text(dhcpmsg4.OptionRootPath)
	require.True(t, ok)
	assert.Equal(t, "/tmp", rootPath)

	domain, ok := got.Options.Text(dhcpmsg4.OptionDomainName)
	require.True(t, ok)
	assert.Equal(t, "lan", domain)
}

func TestMessage_ClientKey(t *testing.T) {
	msg := newTestMessage()
	assert.Equal(t, testMAC, msg.ClientKey())

	clientID := dhcpmsg4.ClientID{HType: 1, ID: []byte{1, 2, 3}}
	msg.Options = append(
		msg.Options,
		dhcpmsg4.NewOption(dhcpmsg4.OptionClientIdentifier, clientID),
	)
	assert.Equal(t, []byte{1, 1, 2, 3}, msg.ClientKey())
}

func TestOptions_MessageType(t *testing.T) {
	msg := newTestMessage()

	typ, ok := msg.Options.MessageType()
	require.True(t, ok)
	assert.Equal(t, dhcpmsg4.MessageTypeDiscover, typ)

	_, ok = dhcpmsg4.Options{}.MessageType()
	assert.False(t, ok)

	badType := dhcpmsg4.Options{{Code: dhcpmsg4.OptionMessageType, Data: []byte{9}}}
	_, ok = badType.MessageType()
	assert.False(t, ok)
}

func TestOptions_ParameterRequestList(t *testing.T) {
	opts := dhcpmsg4.Options{
		dhcpmsg4.NewOption(dhcpmsg4.OptionParameterRequestList, dhcpmsg4.Octets{1, 3, 6}),
	}

	assert.Equal(t, []dhcpmsg4.OptionCode{
		dhcpmsg4.OptionSubnetMask,
		dhcpmsg4.OptionRouter,
		dhcpmsg4.OptionDomainNameServer,
	}, opts.ParameterRequestList())
}

func TestMessage_requiredFieldSizes(t *testing.T) {
	data := newTestMessage().Bytes()

	require.GreaterOrEqual(t, len(data), dhcpmsg4.MinMessageLen)
	assert.Equal(t, []byte{0x63, 0x82, 0x53, 0x63}, data[236:240])

	_, err := dhcpmsg4.ParseMessage(data)
	assert.NoError(t, err)
}

func TestParseMessage_ignoresTrailingGarbage(t *testing.T) {
	data := newTestMessage().Bytes()
	data = append(data, 0xFF, 0x00, 0x01)

	_, err := dhcpmsg4.ParseMessage(data)
	testutil.AssertErrorMsg(t, "", err)
}
