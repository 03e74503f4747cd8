// Package cmd contains the entry point of the DHCP server: the command-line
// interface, the configuration file handling, and the wiring of the server
// cores to their UDP listeners.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsrv"
	"github.com/AdguardTeam/AdGuardDHCP/internal/udpsvc"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/spf13/cobra"
)

// environment is the shared state of the running command.
type environment struct {
	logger *slog.Logger
	clock  timeutil.Clock
}

// defaultConfigPath is the configuration file path used when the flag is not
// given.
const defaultConfigPath = "AdGuardDHCP.yaml"

// shutdownTimeout is how long the listeners get to shut down cleanly.
const shutdownTimeout = 5 * time.Second

// Main is the entry point of the server.  It only returns after the server
// has been told to shut down.
func Main() {
	var confPath string

	root := &cobra.Command{
		Use:           "adguarddhcp",
		Short:         "A dual-stack DHCPv4/DHCPv6 server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			return run(cmd.Context(), confPath)
		},
	}

	root.Flags().StringVarP(&confPath, "config", "c", defaultConfigPath, "path to the configuration file")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run reads the configuration, starts the configured listeners, and blocks
// until ctx is canceled by a termination signal.
func run(ctx context.Context, confPath string) (err error) {
	conf, err := readConfig(confPath)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return err
	}

	env := &environment{
		logger: newLogger(conf.Log),
		clock:  timeutil.SystemClock{},
	}

	srvs, err := newListeners(conf, env)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return err
	}

	for _, srv := range srvs {
		err = srv.Start(ctx)
		if err != nil {
			// Don't wrap the error since it's informative enough as is.
			return err
		}
	}

	env.logger.InfoContext(ctx, "started")

	<-ctx.Done()

	env.logger.InfoContext(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for _, srv := range srvs {
		errs = append(errs, srv.Shutdown(shutdownCtx))
	}

	return errors.Join(errs...)
}

// newLogger builds the root logger from the logging settings.
func newLogger(s *logSettings) (l *slog.Logger) {
	lvl := slog.LevelInfo
	if s != nil && s.Verbose {
		lvl = slog.LevelDebug
	}

	return slogutil.New(&slogutil.Config{
		Format:       slogutil.FormatDefault,
		Level:        lvl,
		AddTimestamp: true,
	})
}

// newListeners builds a UDP listener for every enabled address family.
func newListeners(conf *configuration, env *environment) (srvs []*udpsvc.Server, err error) {
	if s := conf.DHCPv4; s != nil && s.Enabled {
		var srv *udpsvc.Server
		srv, err = newV4Listener(s, conf, env)
		if err != nil {
			// Don't wrap the error since it's informative enough as is.
			return nil, err
		}

		srvs = append(srvs, srv)
	}

	if s := conf.DHCPv6; s != nil && s.Enabled {
		var srv *udpsvc.Server
		srv, err = newV6Listener(s, conf, env)
		if err != nil {
			// Don't wrap the error since it's informative enough as is.
			return nil, err
		}

		srvs = append(srvs, srv)
	}

	if len(srvs) == 0 {
		return nil, errors.Error("no address families enabled")
	}

	return srvs, nil
}

// newV4Listener builds the DHCPv4 core and its listener.
func newV4Listener(
	s *v4Settings,
	conf *configuration,
	env *environment,
) (srv *udpsvc.Server, err error) {
	core, err := dhcpsrv.NewV4(s.toV4Config(env))
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	listenAddr := s.ListenAddr
	if !listenAddr.IsValid() {
		listenAddr = netip.AddrPortFrom(netip.IPv4Unspecified(), dhcpsrv.ServerPortV4)
	}

	return udpsvc.New(&udpsvc.Config{
		Logger:     env.logger.With("listener", "dhcpv4"),
		Core:       core,
		Clock:      env.clock,
		ListenAddr: listenAddr,
		BroadcastAddr: netip.AddrPortFrom(
			netip.AddrFrom4([4]byte{255, 255, 255, 255}),
			dhcpsrv.ClientPortV4,
		),
		SweepIvl: time.Duration(conf.SweepIvl),
	})
}

// newV6Listener builds the DHCPv6 core and its listener.
func newV6Listener(
	s *v6Settings,
	conf *configuration,
	env *environment,
) (srv *udpsvc.Server, err error) {
	v6Conf, err := s.toV6Config(env)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	core, err := dhcpsrv.NewV6(v6Conf)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	listenAddr := s.ListenAddr
	if !listenAddr.IsValid() {
		listenAddr = netip.AddrPortFrom(netip.IPv6Unspecified(), dhcpsrv.ServerPortV6)
	}

	return udpsvc.New(&udpsvc.Config{
		Logger:     env.logger.With("listener", "dhcpv6"),
		Core:       core,
		Clock:      env.clock,
		ListenAddr: listenAddr,
		SweepIvl:   time.Duration(conf.SweepIvl),
	})
}
