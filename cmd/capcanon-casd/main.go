package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xdao.co/capcanon/internal/config"
	"xdao.co/capcanon/internal/logging"
	"xdao.co/capcanon/storage"
	"xdao.co/capcanon/storage/casconfig"
	"xdao.co/capcanon/storage/casregistry"

	_ "xdao.co/capcanon/storage/ipfs"
	_ "xdao.co/capcanon/storage/localfs"
	_ "xdao.co/capcanon/storage/pebblecas"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("capcanon-casd", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var configPath string
	var listen string
	var metricsListen string
	var backend string
	var casConfig string
	var requireCanonical bool
	var listBackends bool
	fs.StringVar(&configPath, "config", "", "Path to capcanon.toml")
	fs.StringVar(&listen, "listen", "", "gRPC listen address (default from config, 127.0.0.1:7777)")
	fs.StringVar(&metricsListen, "metrics-listen", "", "Admin HTTP address for /metrics and /health (optional)")
	fs.StringVar(&backend, "backend", "", "CAS backend name (default from config, localfs)")
	fs.StringVar(&casConfig, "cas-config", "", "JSON file describing several backends (default from config)")
	fs.BoolVar(&requireCanonical, "require-canonical", true, "Reject puts that are not canonical messages")
	fs.BoolVar(&listBackends, "list-backends", false, "List supported backends and exit")
	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			fmt.Fprintf(errOut, "config: %v\n", err)
			return 2
		}
	}
	// Flags given on the command line win over the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Daemon.Listen = listen
		case "metrics-listen":
			cfg.Daemon.MetricsListen = metricsListen
		case "backend":
			cfg.Daemon.Backend = backend
		case "cas-config":
			cfg.CASConfig = casConfig
		case "require-canonical":
			cfg.Daemon.RequireCanonical = requireCanonical
		}
	})

	logger, err := logging.New(logging.ProfileDaemon, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(errOut, "logging: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()
	logging.Install(logger)

	cas, closeFn, err := openCAS(cfg)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", cfg.Daemon.Listen)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	var admin net.Listener
	if cfg.Daemon.MetricsListen != "" {
		if admin, err = net.Listen("tcp", cfg.Daemon.MetricsListen); err != nil {
			_ = lis.Close()
			fmt.Fprintln(errOut, err)
			return 1
		}
	}

	d := &daemon{
		logger:           logger,
		cas:              cas,
		backend:          cfg.Daemon.Backend,
		requireCanonical: cfg.Daemon.RequireCanonical,
		readerOptions:    cfg.ReaderOptions(),
		started:          time.Now(),
	}
	if err := d.serve(ctx, lis, admin); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func openCAS(cfg config.Config) (storage.CAS, func() error, error) {
	if cfg.CASConfig == "" {
		return casregistry.Open(cfg.Daemon.Backend, casregistry.UsageDaemon)
	}
	cc, err := casconfig.LoadFile(cfg.CASConfig)
	if err != nil {
		return nil, nil, err
	}
	return cc.Open(casregistry.UsageDaemon, "")
}
