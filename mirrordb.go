package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxpert/mirrordb/admin"
	"github.com/maxpert/mirrordb/balancer"
	"github.com/maxpert/mirrordb/cfg"
	"github.com/maxpert/mirrordb/cluster"
	"github.com/maxpert/mirrordb/dialect"
	"github.com/maxpert/mirrordb/events"
	_ "github.com/maxpert/mirrordb/events/sink"
	"github.com/maxpert/mirrordb/executor"
	"github.com/maxpert/mirrordb/hlc"
	"github.com/maxpert/mirrordb/node"
	"github.com/maxpert/mirrordb/state"
	"github.com/maxpert/mirrordb/telemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	flag.Parse()

	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("instance_id", cfg.Config.InstanceID).
		Str("cluster", cfg.Config.Cluster.ID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("MirrorDB - replicated database cluster")

	log.Debug().Msg("Initializing telemetry")
	telemetry.Init()

	c, err := buildCluster()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build cluster")
		return
	}

	hub := events.NewHub(hlc.NewClock(cfg.Config.InstanceID))
	c.AddListener(hub)
	defer hub.Close()

	publisher, err := events.NewPublisher(hub, cfg.Config.Events.Sinks)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize event publisher")
		return
	}
	publisher.Start()
	defer publisher.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start cluster")
		return
	}
	defer c.Stop()

	go telemetry.SampleEvery(ctx, c, 5*time.Second)

	if cfg.Config.Admin.Enabled {
		server := admin.NewServer(cfg.Config.Admin.Address, cfg.Config.Admin.Port, admin.NewAdminHandlers(c))
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start admin server")
			return
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Stop(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Admin server shutdown failed")
			}
		}()
	}

	log.Info().
		Strs("active", c.ActiveDatabases()).
		Strs("inactive", c.InactiveDatabases()).
		Msg("Cluster is operational")

	<-ctx.Done()
	log.Info().Msg("Shutting down")
}

// buildCluster wires the configured databases, balancer, dialect, state
// store and worker pool into a cluster. The cluster is not started.
func buildCluster() (*cluster.Cluster, error) {
	nodes := make([]node.Node, 0, len(cfg.Config.Databases))
	for _, d := range cfg.Config.Databases {
		n, err := node.NewDatabase(d.ID, d.Weight, d.Driver, d.DSN)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}

	b, err := balancer.New(cfg.Config.Cluster.Balancer)
	if err != nil {
		return nil, err
	}

	d, err := dialect.Parse(cfg.Config.Cluster.Dialect)
	if err != nil {
		return nil, err
	}

	store, err := state.Open(cfg.Config.State)
	if err != nil {
		return nil, err
	}

	pool := executor.New(
		cfg.Config.Executor.MinWorkers,
		cfg.Config.Executor.MaxWorkers,
		time.Duration(cfg.Config.Executor.MaxIdleSeconds)*time.Second,
	)

	opts := []cluster.Option{
		cluster.WithBalancer(b),
		cluster.WithDialect(d),
		cluster.WithStateStore(store),
		cluster.WithExecutor(pool),
		cluster.WithValidationSQL(cfg.Config.Cluster.ValidationSQL),
		cluster.WithLivenessTimeout(time.Duration(cfg.Config.Health.TimeoutMS) * time.Millisecond),
	}
	if cfg.Config.Health.Enabled {
		opts = append(opts, cluster.WithHealthCheck(
			time.Duration(cfg.Config.Health.IntervalMS)*time.Millisecond,
			cfg.Config.Health.MaxFailures,
		))
	}

	c, err := cluster.New(cfg.Config.Cluster.ID, nodes, opts...)
	if err != nil {
		store.Close()
		pool.Close()
		return nil, err
	}
	return c, nil
}
