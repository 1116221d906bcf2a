package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/ir-server/ir-server/internal/api"
	"github.com/ir-server/ir-server/internal/config"
	"github.com/ir-server/ir-server/internal/driver"
	"github.com/ir-server/ir-server/internal/integration"
	"github.com/ir-server/ir-server/internal/remotes"
	"github.com/ir-server/ir-server/internal/server"
)

func main() {
	var (
		configPath   = pflag.StringP("config", "c", "", "path to the config file")
		driverName   = pflag.String("driver", "", "hardware driver (overrides config)")
		device       = pflag.StringP("device", "d", "", "device path the driver reads (overrides config)")
		output       = pflag.StringP("output", "o", "", "unix socket clients connect to (overrides config)")
		remotesPath  = pflag.String("remotes", "", "lircd.conf style remote definitions (overrides config)")
		logLevel     = pflag.String("log-level", "", "log level (overrides config)")
		listDrivers  = pflag.Bool("list-drivers", false, "list the available drivers and exit")
		validateOnly = pflag.Bool("validate", false, "validate the configuration and exit")
		showVersion  = pflag.Bool("version", false, "print the version and exit")
	)
	pflag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *showVersion {
		fmt.Println(server.Version)
		return
	}
	if *listDrivers {
		fmt.Println(strings.Join(driver.Names(), "\n"))
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Failed to load config")
	}

	// Command-line flags win over both file and environment.
	if *driverName != "" {
		cfg.Driver.Name = *driverName
	}
	if *device != "" {
		cfg.Driver.Device = *device
	}
	if *output != "" {
		cfg.Listen.Output = *output
	}
	if *remotesPath != "" {
		cfg.Remotes.Path = *remotesPath
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if *validateOnly {
		fmt.Println("configuration ok")
		return
	}

	log.Info().
		Str("version", server.Version).
		Str("driver", cfg.Driver.Name).
		Str("output", cfg.Listen.Output).
		Msg("IR daemon starting")

	// Remote definitions. A peer-only daemon runs without any.
	var db *remotes.Database
	if cfg.Remotes.Path != "" {
		db, err = remotes.Load(cfg.Remotes.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Remotes.Path).Msg("Failed to load remote definitions")
		}
	} else {
		db = remotes.Empty()
	}

	drv, err := driver.Choose(cfg.Driver.Name, cfg.Driver.Device)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Driver.Name).Msg("Unknown driver")
	}
	if err := drv.Init(); err != nil {
		log.Fatal().Err(err).Str("driver", drv.Name()).Msg("Failed to initialize driver")
	}

	var sinks []server.EventSink
	if cfg.Integration.NATS.URL != "" {
		pub, err := integration.NewNATSPublisher(cfg.Integration.NATS)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect NATS publisher")
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	srv, err := server.New(cfg, db, drv, sinks...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.API.Enabled {
		rest := api.NewRESTServer(db, srv)
		go func() {
			if err := rest.ListenAndServe(cfg.API.Addr); err != nil {
				log.Error().Err(err).Msg("REST API server stopped")
			}
		}()
		defer rest.Shutdown(context.Background())
	}

	// SIGHUP reloads the remote definitions without dropping clients.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			log.Info().Msg("SIGHUP received, reloading remote definitions")
			srv.TriggerReload()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Signal received, shutting down")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}

	log.Info().Msg("IR daemon stopped")
}
