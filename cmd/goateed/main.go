// Command goateed runs a standalone goatee server process: the user
// registry, the document table, and a websocket listener, optionally
// backed by Postgres persistence and Redis presence fan-out. Grounded on
// the teacher's server/main.go entry point, generalized from a single
// flag.Int("port") and ot.Serve call into a Cobra command tree with
// viper-bound configuration (SPEC_FULL.md §4.11).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/goatee-collab/goatee/broker"
	"github.com/goatee-collab/goatee/broker/localbroker"
	"github.com/goatee-collab/goatee/broker/redisbroker"
	"github.com/goatee-collab/goatee/buffer"
	"github.com/goatee-collab/goatee/config"
	"github.com/goatee-collab/goatee/logging"
	"github.com/goatee-collab/goatee/store"
	"github.com/goatee-collab/goatee/store/memstore"
	"github.com/goatee-collab/goatee/store/postgres"

	"github.com/redis/go-redis/v9"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "goateed",
		Short: "Run a goatee collaborative-editing server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, cfgFile)
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	config.BindServerFlags(cmd, v)
	return cmd
}

func run(ctx context.Context, v *viper.Viper, cfgFile string) error {
	if err := config.ApplyConfigFile(v, cfgFile); err != nil {
		return fmt.Errorf("goateed: load config file: %w", err)
	}
	cfg, err := config.LoadServer(v)
	if err != nil {
		return fmt.Errorf("goateed: unmarshal config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("goateed: %w", err)
	}
	defer log.Sync()

	var st store.Store
	if cfg.DSN != "" {
		pg, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return fmt.Errorf("goateed: connect to postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("goateed: ensure schema: %w", err)
		}
		defer pg.Close()
		st = pg
	} else {
		st = memstore.New()
		log.Info("no dsn configured, using in-memory session store")
	}

	var br broker.Broker
	if cfg.RedisAddr != "" {
		br = redisbroker.New(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	} else {
		br = localbroker.New()
		log.Info("no redis address configured, using in-process presence broker")
	}

	srv := buffer.NewServer(buffer.Config{
		Log:             log,
		Store:           st,
		Broker:          br,
		GlobalPassword:  cfg.GlobalPassword,
		ProtocolVersion: cfg.ProtocolVersion,
	})
	if err := srv.LoadFromStore(ctx); err != nil {
		log.Warn("failed to restore prior session", zap.Error(err))
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go srv.RunPersistenceLoop(runCtx, 30*time.Second)

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: srv}
	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info("goateed listening", zap.String("addr", cfg.ListenAddr))
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("goateed: serve: %w", err)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
