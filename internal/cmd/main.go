package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/raven-go"
	"github.com/rs/zerolog"

	"github.com/ferux/trafficsentinel"
	"github.com/ferux/trafficsentinel/internal/api"
	"github.com/ferux/trafficsentinel/internal/config"
	"github.com/ferux/trafficsentinel/internal/freebox"
	"github.com/ferux/trafficsentinel/internal/gateway"
	"github.com/ferux/trafficsentinel/internal/registry"
	"github.com/ferux/trafficsentinel/internal/scanner"
	"github.com/ferux/trafficsentinel/internal/sentinel"
	"github.com/ferux/trafficsentinel/internal/slack"
)

func main() {
	path := flag.String("config", "./config.json", "path to config")
	showRevision := flag.Bool("revision", false, "show version of the application")
	authorize := flag.Bool("authorize", false, "pair with the router and exit")

	flag.Parse()

	if *showRevision {
		fmt.Println(trafficsentinel.Revision)
		return
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg, err := config.Parse(*path)
	if err != nil {
		logger.
			Fatal().
			Err(err).
			Str("revision", trafficsentinel.Revision).
			Str("branch", trafficsentinel.Branch).
			Str("env", trafficsentinel.Env).
			Msg("parsing config file")
	}

	if !cfg.Debug {
		logger = logger.Level(zerolog.InfoLevel)
	}
	if cfg.LogFile != "" {
		logFile, errLog := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if errLog != nil {
			logger.Fatal().Err(errLog).Msg("can't open log file")
		}
		defer logFile.Close()
		logger = logger.Output(zerolog.MultiLevelWriter(os.Stdout, logFile))
	}

	logger.
		Debug().
		Interface("config", cfg).
		Str("revision", trafficsentinel.Revision).
		Str("branch", trafficsentinel.Branch).
		Msg("starting application")

	fb := freebox.New(cfg.Freebox, logger)

	if *authorize {
		if err = fb.Authorize(context.Background()); err != nil {
			logger.Fatal().Err(err).Msg("pairing failed")
		}
		logger.Info().Msg("paired with the router, token saved")
		return
	}

	// TODO: hide sentry under interface implementation
	notifierClient, err := raven.New(cfg.SentryDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("can't create sentry client")
	}
	notifierClient.SetRelease(trafficsentinel.Revision)
	notifierClient.SetEnvironment(trafficsentinel.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := registry.InitDB(ctx, cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("can't open device registry")
	}
	defer db.Close()
	reg := registry.New(db)

	// a router that is down at boot is the exact condition the loop is
	// built to ride out, so connect failures only warn
	if err = fb.Connect(ctx); err != nil {
		logger.Warn().Err(err).Msg("router unreachable, will retry during cycles")
	}

	gw := gateway.WithReauth(fb, fb, logger)
	sc := scanner.NewARPScan(cfg.Scanner, logger)
	notify := slack.New(cfg.NotifySlack.WebhookURL)

	engine := sentinel.New(reg, gw, sc, notify, logger, cfg.Sentinel)

	httpAPI, _ := api.NewHTTP(cfg, reg, engine, logger, notifierClient)
	httpAPI.Serve()

	engineDone := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(engineDone)
	}()

	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT)
	<-s

	logger.Info().Msg("shutting down")
	cancel()
	<-engineDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second*15)
	defer shutdownCancel()

	if errShut := httpAPI.Shutdown(shutdownCtx); errShut != nil {
		logger.Error().Err(errShut).Msg("error shutting down server")
	}
}
