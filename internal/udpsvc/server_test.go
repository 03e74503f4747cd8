package udpsvc_test

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg4"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsrv"
	"github.com/AdguardTeam/AdGuardDHCP/internal/udpsvc"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/AdguardTeam/golibs/testutil/faketime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for test operations.
const testTimeout = 5 * time.Second

// testLogger is a common logger for tests.
var testLogger = slogutil.NewDiscardLogger()

// testClock is the test clock that always returns the same time.
var testClock = &faketime.Clock{
	OnNow: func() (now time.Time) {
		return time.Date(2025, 1, 1, 1, 1, 1, 0, time.UTC)
	},
}

// newTestCore returns a DHCPv4 server core for transport tests.
func newTestCore(tb testing.TB) (core *dhcpsrv.ServerV4) {
	tb.Helper()

	core, err := dhcpsrv.NewV4(&dhcpsrv.V4Config{
		Logger:        testLogger,
		Clock:         testClock,
		Subnet:        netip.MustParseAddr("127.0.0.0"),
		Netmask:       netip.MustParseAddr("255.0.0.0"),
		RangeStart:    netip.MustParseAddr("127.0.1.100"),
		RangeEnd:      netip.MustParseAddr("127.0.1.200"),
		LeaseDuration: time.Hour,
	})
	require.NoError(tb, err)

	return core
}

func TestServer(t *testing.T) {
	srv, err := udpsvc.New(&udpsvc.Config{
		Logger:     testLogger,
		Core:       newTestCore(t),
		Clock:      testClock,
		ListenAddr: netip.MustParseAddrPort("127.0.0.1:0"),
		SweepIvl:   udpsvc.DefaultSweepIvl,
	})
	require.NoError(t, err)

	ctx := testutil.ContextWithTimeout(t, testTimeout)

	require.NoError(t, srv.Start(ctx))
	testutil.CleanupAndRequireSuccess(t, func() (err error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	cli, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	testutil.CleanupAndRequireSuccess(t, cli.Close)

	disc := &dhcpmsg4.Message{
		Op:    dhcpmsg4.OpBootRequest,
		HType: 1,
		HLen:  6,
		XID:   42,
		Options: dhcpmsg4.Options{
			dhcpmsg4.NewOption(dhcpmsg4.OptionMessageType, dhcpmsg4.MessageTypeDiscover),
		},
	}
	copy(disc.CHAddr[:], []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})

	_, err = cli.WriteToUDPAddrPort(disc.Bytes(), srv.LocalAddr())
	require.NoError(t, err)

	require.NoError(t, cli.SetReadDeadline(time.Now().Add(testTimeout)))

	buf := make([]byte, 4096)
	n, _, err := cli.ReadFromUDPAddrPort(buf)
	require.NoError(t, err)

	offer, err := dhcpmsg4.ParseMessage(buf[:n])
	require.NoError(t, err)

	typ, ok := offer.Options.MessageType()
	require.True(t, ok)
	assert.Equal(t, dhcpmsg4.MessageTypeOffer, typ)
	assert.Equal(t, uint32(42), offer.XID)
	assert.Equal(t, netip.MustParseAddr("127.0.1.100"), offer.YIAddr)

	// A malformed datagram is dropped without a response, and the listener
	// keeps serving.
	_, err = cli.WriteToUDPAddrPort([]byte{0xDE, 0xAD}, srv.LocalAddr())
	require.NoError(t, err)

	_, err = cli.WriteToUDPAddrPort(disc.Bytes(), srv.LocalAddr())
	require.NoError(t, err)

	n, _, err = cli.ReadFromUDPAddrPort(buf)
	require.NoError(t, err)

	offer, err = dhcpmsg4.ParseMessage(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("127.0.1.100"), offer.YIAddr)
}

func TestConfig_Validate(t *testing.T) {
	conf := &udpsvc.Config{}
	err := conf.Validate()
	require.Error(t, err)

	var nilConf *udpsvc.Config
	assert.Error(t, nilConf.Validate())
}
