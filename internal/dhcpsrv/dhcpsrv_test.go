package dhcpsrv_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsrv"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil/faketime"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/stretchr/testify/require"
)

// testLogger is a common logger for tests.
var testLogger = slogutil.NewDiscardLogger()

// testLeaseTTL is the lease duration used in tests.
const testLeaseTTL = 3600 * time.Second

// testStartTime is the initial time returned by test clocks.
var testStartTime = time.Date(2025, 1, 1, 1, 1, 1, 0, time.UTC)

// newTestClock returns a clock for tests together with a function that
// advances it.
func newTestClock() (clock timeutil.Clock, advance func(d time.Duration)) {
	now := testStartTime
	clock = &faketime.Clock{
		OnNow: func() (t time.Time) {
			return now
		},
	}

	return clock, func(d time.Duration) { now = now.Add(d) }
}

const (
	// testSubnetV4Str is the string representation of the test IPv4 subnet.
	testSubnetV4Str = "192.168.1.0"

	// testNetmaskV4Str is the string representation of the test IPv4 netmask.
	testNetmaskV4Str = "255.255.255.0"

	// testGatewayV4Str is the string representation of the test gateway.
	testGatewayV4Str = "192.168.1.1"

	// testRangeStartV4Str is the string representation of the start of the
	// test IPv4 range.
	testRangeStartV4Str = "192.168.1.100"

	// testRangeEndV4Str is the string representation of the end of the test
	// IPv4 range.
	testRangeEndV4Str = "192.168.1.200"

	// testDNSV4Str is the string representation of the test IPv4 resolver.
	testDNSV4Str = "8.8.8.8"
)

var (
	// testSubnetV4 is the test IPv4 subnet address.
	testSubnetV4 = netip.MustParseAddr(testSubnetV4Str)

	// testNetmaskV4 is the test IPv4 netmask.
	testNetmaskV4 = netip.MustParseAddr(testNetmaskV4Str)

	// testGatewayV4 is the test gateway address.
	testGatewayV4 = netip.MustParseAddr(testGatewayV4Str)

	// testRangeStartV4 is the start of the test IPv4 range.
	testRangeStartV4 = netip.MustParseAddr(testRangeStartV4Str)

	// testRangeEndV4 is the end of the test IPv4 range.
	testRangeEndV4 = netip.MustParseAddr(testRangeEndV4Str)

	// testDNSV4 is the test IPv4 resolver address.
	testDNSV4 = netip.MustParseAddr(testDNSV4Str)

	// testPeerV4 is the datagram source used in DHCPv4 tests.
	testPeerV4 = netip.MustParseAddrPort("192.168.1.50:68")
)

// newTestV4Config returns a valid DHCPv4 configuration for tests.
func newTestV4Config(clock timeutil.Clock) (conf *dhcpsrv.V4Config) {
	return &dhcpsrv.V4Config{
		Logger:        testLogger,
		Clock:         clock,
		Subnet:        testSubnetV4,
		Netmask:       testNetmaskV4,
		GatewayIP:     testGatewayV4,
		RangeStart:    testRangeStartV4,
		RangeEnd:      testRangeEndV4,
		DNSServers:    []netip.Addr{testDNSV4},
		LeaseDuration: testLeaseTTL,
	}
}

// newTestServerV4 returns a started DHCPv4 server core for tests.
func newTestServerV4(tb testing.TB, conf *dhcpsrv.V4Config) (srv *dhcpsrv.ServerV4) {
	tb.Helper()

	srv, err := dhcpsrv.NewV4(conf)
	require.NoError(tb, err)

	return srv
}

const (
	// testPrefixV6Str is the string representation of the test IPv6 prefix.
	testPrefixV6Str = "2001:db8::/64"

	// testRangeStartV6Str is the string representation of the start of the
	// test IPv6 range.
	testRangeStartV6Str = "2001:db8::1000"

	// testRangeEndV6Str is the string representation of the end of the test
	// IPv6 range.
	testRangeEndV6Str = "2001:db8::2000"

	// testDNSV6Str is the string representation of the test IPv6 resolver.
	testDNSV6Str = "2001:4860:4860::8888"
)

var (
	// testPrefixV6 is the test IPv6 prefix.
	testPrefixV6 = netip.MustParsePrefix(testPrefixV6Str)

	// testRangeStartV6 is the start of the test IPv6 range.
	testRangeStartV6 = netip.MustParseAddr(testRangeStartV6Str)

	// testRangeEndV6 is the end of the test IPv6 range.
	testRangeEndV6 = netip.MustParseAddr(testRangeEndV6Str)

	// testDNSV6 is the test IPv6 resolver address.
	testDNSV6 = netip.MustParseAddr(testDNSV6Str)

	// testPeerV6 is the datagram source used in DHCPv6 tests.
	testPeerV6 = netip.MustParseAddrPort("[fe80::1]:546")

	// testServerDUID is the server identity used in tests.
	testServerDUID = []byte("test-server-duid")

	// testClientDUID is the client identity used in tests.
	testClientDUID = []byte("test-client-duid")
)

// testIAID is the identity association ID used in tests.
const testIAID uint32 = 12345

// newTestV6Config returns a valid DHCPv6 configuration for tests.
func newTestV6Config(clock timeutil.Clock, rapidCommit bool) (conf *dhcpsrv.V6Config) {
	return &dhcpsrv.V6Config{
		Logger:        testLogger,
		Clock:         clock,
		Prefix:        testPrefixV6,
		RangeStart:    testRangeStartV6,
		RangeEnd:      testRangeEndV6,
		DNSServers:    []netip.Addr{testDNSV6},
		ServerDUID:    testServerDUID,
		LeaseDuration: testLeaseTTL,
		RapidCommit:   rapidCommit,
	}
}

// newTestServerV6 returns a started DHCPv6 server core for tests.
func newTestServerV6(tb testing.TB, conf *dhcpsrv.V6Config) (srv *dhcpsrv.ServerV6) {
	tb.Helper()

	srv, err := dhcpsrv.NewV6(conf)
	require.NoError(tb, err)

	return srv
}
