// Command lanhubd runs the lanhub server core: TCP control connections,
// UDP discovery, and the file-transfer side-channel described in
// SPEC_FULL.md.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/lanhub/lanhub/internal/config"
	"github.com/lanhub/lanhub/internal/discovery"
	"github.com/lanhub/lanhub/internal/fsroot"
	"github.com/lanhub/lanhub/internal/master"
	"github.com/lanhub/lanhub/internal/metrics"
	"github.com/lanhub/lanhub/internal/permission"
	"github.com/lanhub/lanhub/internal/sink"
	"github.com/lanhub/lanhub/internal/users"
	"github.com/lanhub/lanhub/internal/worker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:   "lanhubd",
		Short: "LAN file-sharing and messaging server core",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				v.SetConfigFile(configFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config file: %w", err)
				}
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML config file")
	config.BindFlags(cmd, v)
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log, closeLog, err := buildLogger(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	share, err := fsroot.Open(cfg.ShareDir)
	if err != nil {
		return fmt.Errorf("opening share directory: %w", err)
	}
	defer share.Close()

	userTable, err := users.LoadFile(cfg.UsersFile)
	if err != nil {
		return fmt.Errorf("loading users file: %w", err)
	}
	log.WithField("count", userTable.Len()).Info("loaded user table")

	perms := permission.New(cfg.DefaultPermissions)

	var collector metrics.Collector = metrics.NopCollector{}
	var promCollector *metrics.PromCollector
	if cfg.MetricsListen != "" {
		promCollector = metrics.NewPromCollector()
		collector = promCollector
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Listen, err)
	}

	tcpPort := ln.Addr().(*net.TCPAddr).Port
	advertiseIP, err := outboundIPv4()
	if err != nil {
		return fmt.Errorf("determining advertise address: %w", err)
	}

	disc, err := discovery.New(cfg.ServerName, advertiseIP, tcpPort, log)
	if err != nil {
		return fmt.Errorf("starting discovery responder: %w", err)
	}

	deps := worker.Deps{
		Permissions:    perms,
		Users:          userTable,
		Share:          share,
		Metrics:        collector,
		Log:            log,
		MaxPacketBytes: cfg.MaxPacketBytes,
		IdleTimeout:    time.Duration(cfg.IdleTimeoutSec) * time.Second,
		DownloadBpsCap: cfg.DownloadBps,
		UploadBpsCap:   cfg.UploadBps,
		UploadCapBytes: cfg.UploadCapBytes,
	}

	tap := sink.NewUITap(64)
	shutdownGrace := time.Duration(cfg.ShutdownGraceSec) * time.Second
	m := master.New(ln, deps, collector, tap, log, cfg.MaxConnections, cfg.MaxPerIP, shutdownGrace)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		disc.Serve()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		disc.Close()
		return nil
	})
	g.Go(func() error {
		return m.Run(gctx)
	})
	if promCollector != nil {
		srv := &http.Server{Addr: cfg.MetricsListen, Handler: promCollector.Handler()}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	log.WithField("listen", cfg.Listen).WithField("tcp_port", tcpPort).Info("lanhubd starting")
	return g.Wait()
}

func buildLogger(logFile string) (*logrus.Entry, func(), error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	sinks := []sink.Sink{}
	closeFn := func() {}
	if logFile != "" {
		fs, err := sink.NewFileSink(logFile)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		sinks = append(sinks, fs)
		closeFn = func() { _ = fs.Close() }
		logger.SetOutput(sink.NewMulti(append(sinks, stderrSink{})...))
	}
	return logrus.NewEntry(logger), closeFn, nil
}

// stderrSink adapts os.Stderr to the Sink interface so it can ride
// alongside a FileSink in a fan-out Multi writer.
type stderrSink struct{}

func (stderrSink) WriteString(s string) error {
	_, err := os.Stderr.WriteString(s)
	return err
}

// outboundIPv4 picks the IPv4 address this host would use to reach the
// LAN, for the discovery responder to advertise. It dials a UDP
// "connection" (no packets sent) purely to let the OS resolve the local
// address it would route through.
func outboundIPv4() (net.IP, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return net.IPv4(127, 0, 0, 1), nil
	}
	defer conn.Close()
	addr := conn.LocalAddr().(*net.UDPAddr)
	return addr.IP, nil
}
