package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"planetfall-server/internal/ai"
	"planetfall-server/internal/auth"
	"planetfall-server/internal/combat"
	"planetfall-server/internal/config"
	"planetfall-server/internal/game"
	"planetfall-server/internal/logging"
	"planetfall-server/internal/physics"
	"planetfall-server/internal/registry"
	"planetfall-server/internal/server"
	"planetfall-server/internal/sim"
	"planetfall-server/internal/store"
	"planetfall-server/internal/telemetry"
	"planetfall-server/internal/terrain"
)

func main() {
	configPath := flag.String("config", "", "Path to a config file (yaml, json or toml)")
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	tcpAddr := flag.String("tcp", "", "TCP listen address (overrides server.tcpAddr, \"off\" disables)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logging.New("info", false, os.Stderr)
		bootLog.Fatal().Err(err).Msg("loading config")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *tcpAddr != "" {
		cfg.Server.TCPAddr = *tcpAddr
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Pretty, os.Stdout)
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, err := telemetry.New()
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Database.Path, log)
	if err != nil {
		return err
	}
	defer db.Close()

	events := store.NewRecorder(db, 0, log)
	defer events.Stop()

	a := auth.New(db, log)
	a.TokenTTL = cfg.Auth.TokenTTL
	a.BcryptCost = cfg.Auth.BcryptCost
	a.MaxLoginAttempts = cfg.Auth.MaxLoginAttempts
	a.LoginWindow = cfg.Auth.LoginWindow

	hub := server.NewHub(log)
	hub.Metrics = metrics
	hub.MaxConnsPerIP = cfg.Server.MaxConnsPerIP
	hub.MaxConns = cfg.Server.MaxConns

	half := cfg.Game.SpaceSize / 2
	bounds := physics.Bounds{MinX: -half, MinY: -half, MaxX: half, MaxY: half}
	reg := registry.New(bounds, hub, log)
	cm := combat.NewManager(reg, hub, log)
	cm.Metrics = metrics

	galaxy := terrain.NewGalaxy(cfg.Game.GalaxySeed, bounds)
	games := game.NewDirectory(galaxy, db, cfg.Game.Capacity, log)
	if cfg.AI.Guardians {
		games.Guardian = sim.Guardians(reg, cm, log)
	}

	fleet := ai.NewFleet(reg, cm, log)
	world := sim.NewWorld(reg, cm, games, fleet, log)
	if cfg.AI.Patrols > 0 {
		world.Patrol = sim.NewPatrol(fleet, bounds, cfg.AI.Patrols, cfg.AI.RespawnDelay.Seconds(), log)
	}

	srv := server.New(server.Options{
		PublicURL:         cfg.Server.PublicURL,
		SendBuffer:        cfg.Server.SendBuffer,
		MessagesPerSecond: cfg.Server.MessagesPerSecond,
		MessageBurst:      cfg.Server.MessageBurst,
		RespawnDelay:      cfg.Sim.RespawnDelay,
	}, hub, a, world, log)
	srv.Metrics = metrics
	srv.Events = events

	sched := sim.NewScheduler(world, cfg.Sim.TickRate, log)
	sched.Metrics = metrics
	go sched.Run(ctx)

	httpSrv := &http.Server{Addr: cfg.Server.Addr, Handler: srv.Routes()}
	errs := make(chan error, 2)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Int("planets", len(galaxy.Planets())).Msg("server starting")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	if cfg.Server.TCPAddr != "" && cfg.Server.TCPAddr != "off" {
		ln, err := net.Listen("tcp", cfg.Server.TCPAddr)
		if err != nil {
			return err
		}
		go func() {
			if err := srv.ServeTCP(ctx, ln); err != nil {
				errs <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
		stop()
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
	hub.CloseAll()
	return runErr
}
