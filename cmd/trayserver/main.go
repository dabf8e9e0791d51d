// Package main provides the dice tray server. It wires together
// configuration, database persistence, die geometry, the physics
// simulator, and the tray engine's tick loop.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dicetray/internal/config"
	"github.com/cory-johannsen/dicetray/internal/game/dice"
	"github.com/cory-johannsen/dicetray/internal/game/physics"
	"github.com/cory-johannsen/dicetray/internal/game/roll"
	"github.com/cory-johannsen/dicetray/internal/game/tray"
	"github.com/cory-johannsen/dicetray/internal/observability"
	"github.com/cory-johannsen/dicetray/internal/server"
	"github.com/cory-johannsen/dicetray/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Initialize logger
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting dice tray server")

	// Connect to PostgreSQL
	ctx := context.Background()
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("database", cfg.Database.Name),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	// Load die geometry
	registry := dice.NewRegistry()
	if cfg.Dice.DefinitionsDir != "" {
		applied, err := registry.LoadDefinitions(cfg.Dice.DefinitionsDir)
		if err != nil {
			logger.Fatal("loading die definitions", zap.Error(err))
		}
		logger.Info("die definitions loaded",
			zap.String("dir", cfg.Dice.DefinitionsDir),
			zap.Int("applied", applied),
		)
	}

	// Build services
	src := dice.NewCryptoSource()
	world := physics.NewSimulator(registry, src, physics.Config{
		TrayExtent:     cfg.Physics.TrayExtent,
		MinSettleSteps: cfg.Physics.MinSettleSteps,
		MaxSettleSteps: cfg.Physics.MaxSettleSteps,
		Damping:        cfg.Physics.Damping,
	}, logger)

	rolls := postgres.NewRollRepository(pool.DB())
	seq := roll.NewSequence()
	maxID, err := rolls.MaxRollID(ctx)
	if err != nil {
		logger.Fatal("seeding roll sequence", zap.Error(err))
	}
	seq.Advance(maxID)

	engine := tray.NewEngine(world, seq, roll.NewResolver(logger), src, tray.Config{
		MaxPhysicalDice: cfg.Tray.MaxPhysicalDice,
		SpawnStagger:    cfg.Tray.SpawnStagger,
		SpawnJitter:     cfg.Tray.SpawnJitter,
		SettleTicks:     cfg.Tray.SettleTicks,
		MaxAwakeTicks:   cfg.Tray.MaxAwakeTicks,
	}, logger)

	// Persist every resolved roll with its final physical state.
	engine.OnRollResolved(func(rec *roll.Record) {
		snap, ok := engine.Snapshot(rec.ID)
		if !ok {
			snap = tray.Snapshot{Record: rec}
		}
		if err := rolls.SaveSnapshot(ctx, snap); err != nil {
			logger.Error("persisting resolved roll",
				zap.Int64("roll_id", rec.ID),
				zap.Error(err),
			)
		}
	})

	ticker := server.NewTickerService(cfg.Tray.TickInterval, func(now time.Time) {
		world.Step()
		engine.Tick(now)
	}, logger)

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			// Pool is already connected; just keep it alive
			for {
				time.Sleep(30 * time.Second)
				if err := pool.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("database health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			pool.Close()
		},
	})

	lifecycle.Add("tray", ticker)

	logger.Info("server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Duration("tick_interval", cfg.Tray.TickInterval),
		zap.Int("max_physical_dice", cfg.Tray.MaxPhysicalDice),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
