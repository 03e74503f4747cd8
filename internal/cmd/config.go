package cmd

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsrv"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"gopkg.in/yaml.v3"
)

// configuration is the YAML configuration structure of the server.  The order
// of fields is the order in the file.
type configuration struct {
	DHCPv4 *v4Settings  `yaml:"dhcpv4"`
	DHCPv6 *v6Settings  `yaml:"dhcpv6"`
	Log    *logSettings `yaml:"log"`

	// SweepIvl is the interval between lease expiry sweeps.
	SweepIvl timeutil.Duration `yaml:"sweep_interval"`
}

// v4Settings are the DHCPv4 settings of the configuration file.
type v4Settings struct {
	Subnet     netip.Addr   `yaml:"subnet"`
	Netmask    netip.Addr   `yaml:"netmask"`
	GatewayIP  netip.Addr   `yaml:"gateway_ip"`
	RangeStart netip.Addr   `yaml:"range_start"`
	RangeEnd   netip.Addr   `yaml:"range_end"`
	DNSServers []netip.Addr `yaml:"dns_servers"`

	ListenAddr netip.AddrPort `yaml:"listen_address"`

	LeaseDuration timeutil.Duration `yaml:"lease_duration"`

	Enabled bool `yaml:"enabled"`
}

// v6Settings are the DHCPv6 settings of the configuration file.
type v6Settings struct {
	Prefix     netip.Prefix `yaml:"prefix"`
	RangeStart netip.Addr   `yaml:"range_start"`
	RangeEnd   netip.Addr   `yaml:"range_end"`
	DNSServers []netip.Addr `yaml:"dns_servers"`

	// ServerDUID is the hex-encoded DHCPv6 server identity.  When empty, a
	// fresh one is generated at every start.
	ServerDUID string `yaml:"server_duid"`

	ListenAddr netip.AddrPort `yaml:"listen_address"`

	LeaseDuration timeutil.Duration `yaml:"lease_duration"`

	RapidCommit bool `yaml:"rapid_commit"`

	Enabled bool `yaml:"enabled"`
}

// logSettings are the logging settings of the configuration file.
type logSettings struct {
	Verbose bool `yaml:"verbose"`
}

// readConfig reads and decodes the YAML configuration file.
func readConfig(path string) (conf *configuration, err error) {
	defer func() { err = errors.Annotate(err, "reading config %q: %w", path) }()

	data, err := os.ReadFile(path)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	conf = &configuration{
		SweepIvl: timeutil.Duration(time.Minute),
	}
	err = yaml.Unmarshal(data, conf)
	if err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}

	if conf.DHCPv4 == nil && conf.DHCPv6 == nil {
		return nil, errors.Error("no address families configured")
	}

	return conf, nil
}

// toV4Config converts the file settings into a server core configuration.  It
// doesn't validate the result; [dhcpsrv.NewV4] does.
func (s *v4Settings) toV4Config(env *environment) (conf *dhcpsrv.V4Config) {
	return &dhcpsrv.V4Config{
		Logger:        env.logger.With("family", "dhcpv4"),
		Clock:         env.clock,
		Subnet:        s.Subnet,
		Netmask:       s.Netmask,
		GatewayIP:     s.GatewayIP,
		RangeStart:    s.RangeStart,
		RangeEnd:      s.RangeEnd,
		DNSServers:    s.DNSServers,
		LeaseDuration: time.Duration(s.LeaseDuration),
	}
}

// toV6Config converts the file settings into a server core configuration.  It
// only checks that the server DUID is valid hex; [dhcpsrv.NewV6] validates the
// rest.
func (s *v6Settings) toV6Config(env *environment) (conf *dhcpsrv.V6Config, err error) {
	var duid []byte
	if s.ServerDUID != "" {
		duid, err = hex.DecodeString(s.ServerDUID)
		if err != nil {
			return nil, fmt.Errorf("server_duid: %w", err)
		}
	}

	return &dhcpsrv.V6Config{
		Logger:        env.logger.With("family", "dhcpv6"),
		Clock:         env.clock,
		Prefix:        s.Prefix,
		RangeStart:    s.RangeStart,
		RangeEnd:      s.RangeEnd,
		DNSServers:    s.DNSServers,
		ServerDUID:    duid,
		LeaseDuration: time.Duration(s.LeaseDuration),
		RapidCommit:   s.RapidCommit,
	}, nil
}
