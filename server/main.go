package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/rs/zerolog"

	"go_mini_ftp/auth"
	"go_mini_ftp/config"
	"go_mini_ftp/constants"
	"go_mini_ftp/fileio"
	"go_mini_ftp/logging"
	"go_mini_ftp/metrics"
	server "go_mini_ftp/server/controller"
)

func main() {
	args := argparse.NewParser("server", constants.Title)

	port := args.StringPositional(&argparse.Options{Required: false, Help: "Listening port"})
	cfgPath := args.String("c", "config", &argparse.Options{Required: false, Help: "TOML configuration file"})
	bind := args.String("l", "listen", &argparse.Options{Required: false, Help: "Listen on address",
		Default: constants.DEFAULT_LISTEN})
	root := args.String("r", "root", &argparse.Options{Required: false, Help: "Root folder served to clients",
		Default: constants.DEFAULT_ROOT})
	users := args.String("u", "users", &argparse.Options{Required: false, Help: "Credentials file of user:password lines",
		Default: constants.DEFAULT_USERS_FILE})
	idle := args.String("t", "timeout", &argparse.Options{Required: false, Help: "Idle timeout per read or write, 0 disables",
		Default: constants.DEFAULT_IDLE.String()})
	sessions := args.Int("s", "sessions", &argparse.Options{Required: false, Help: "Maximum concurrent sessions, 1 serves clients one at a time",
		Default: constants.DEFAULT_SESSIONS})
	dscp := args.Int("d", "dscp", &argparse.Options{Required: false, Help: "DSCP field for QoS",
		Default: constants.DEFAULT_DSCP})
	metricsAddr := args.String("m", "metrics", &argparse.Options{Required: false, Help: "Expose Prometheus metrics on address"})
	verbose := args.Flag("v", "verbose", &argparse.Options{Help: "Debug logging"})
	hashPw := args.String("H", "hash-password", &argparse.Options{Required: false, Help: "Print a bcrypt hash for a credentials file and exit"})

	err := args.Parse(os.Args)

	if err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	if *hashPw != "" {
		hash, err := auth.HashPassword(*hashPw)
		if err != nil {
			fmt.Println(err.Error())
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg := config.Default()
	if *cfgPath != "" {
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			fmt.Println(err.Error())
			os.Exit(1)
		}
	}

	// Flags given on the command line win over the file.
	if *port != "" {
		p, err := config.ParsePort(*port)
		if err != nil {
			fmt.Print(args.Usage(err))
			os.Exit(1)
		}
		cfg.Port = p
	}
	if cfg.Port == 0 {
		fmt.Print(args.Usage(errors.New("listening port is required")))
		os.Exit(1)
	}
	if parsed(args, "listen") {
		cfg.Listen = *bind
	}
	if parsed(args, "root") {
		cfg.Root = *root
	}
	if parsed(args, "users") {
		cfg.Credentials = *users
	}
	if parsed(args, "timeout") {
		d, err := time.ParseDuration(*idle)
		if err != nil {
			fmt.Print(args.Usage(err))
			os.Exit(1)
		}
		cfg.IdleTimeout = d
	}
	if parsed(args, "sessions") {
		cfg.MaxSessions = *sessions
	}
	if parsed(args, "dscp") {
		cfg.DSCP = *dscp
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}

	logCfg := logging.DefaultConfig()
	if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
		logCfg.Level = lvl
	}
	if *verbose {
		logCfg.Level = zerolog.DebugLevel
	}
	logger := logging.New("server", logCfg)

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

// run serves until SIGINT or SIGTERM
func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := fileio.NewRootSource(cfg.Root)
	if err != nil {
		return err
	}
	defer source.Close()
	source.Archives = cfg.Archives

	if _, err := os.Stat(cfg.Credentials); err != nil {
		// Every login is rejected until the file appears.
		logger.Warn().Err(err).Str("credentials", cfg.Credentials).Msg("credentials file not readable")
	}
	gate := auth.NewGate(auth.NewFileStore(cfg.Credentials), logger)

	opts := server.Options{
		ServerName:  cfg.ServerName,
		Version:     cfg.Version,
		IdleTimeout: cfg.IdleTimeout,
		MaxSessions: cfg.MaxSessions,
		DSCP:        cfg.DSCP,
		Logger:      logger,
	}

	if cfg.MetricsAddr != "" {
		collector := metrics.New()
		opts.Metrics = collector
		go func() {
			if err := collector.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	logger.Info().
		Str("root", source.Name()).
		Str("credentials", cfg.Credentials).
		Int("sessions", cfg.MaxSessions).
		Bool("archives", cfg.Archives).
		Msg("starting server")

	srv := server.NewServer(gate, source, opts)
	if err := srv.ListenAndServe(ctx, cfg.Addr()); err != nil {
		return err
	}
	logger.Info().Msg("shutting down")
	return nil
}

// parsed reports whether the named flag appeared on the command line
func parsed(p *argparse.Parser, lname string) bool {
	for _, arg := range p.GetArgs() {
		if arg.GetLname() == lname {
			return arg.GetParsed()
		}
	}
	return false
}
