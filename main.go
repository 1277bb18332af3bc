package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ReddyLab/cegs-portal-sub001/internal/config"
	"github.com/ReddyLab/cegs-portal-sub001/logger"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/db"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/handler"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/loader"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/middle"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/source"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const VERSION = "0.1.0"

var cfg *config.Config

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "cegs-loader",
		Short:         "Load genomic features and observations into the CEGS portal database",
		Version:       VERSION,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			cfg = config.Load(files...)
			if err := logger.InitLogger(cfg.LogLevel); err != nil {
				return err
			}
			cfg.Report()
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync() // Make sure that the buffered is flushed.
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "read settings from this file instead of ./.env")
	root.AddCommand(newMigrateCmd(), newLoadCmd(), newServeCmd())
	return root
}

func openStore(ctx context.Context) (db.Store, error) {
	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Info("Open database on", zap.String("DB_LOC", redact(cfg.DatabaseURL)))
	return store, nil
}

// redact hides the password of a database URL before it is logged.
func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and seed the Direction facet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				logger.Error("Migration failed", zap.Error(err))
				return err
			}
			return nil
		},
	}
}

func newLoadCmd() *cobra.Command {
	load := &cobra.Command{
		Use:   "load",
		Short: "Run one load from a manifest",
	}
	for _, kind := range []loader.Kind{loader.KindExperiment, loader.KindAnalysis} {
		load.AddCommand(&cobra.Command{
			Use:   string(kind) + " <manifest>",
			Short: "Load an " + string(kind) + " described by a YAML or JSON manifest (local path or s3:// URL)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				store, err := openStore(ctx)
				if err != nil {
					return err
				}
				defer store.Close()

				l := loader.New(store, source.NewOpener(cfg.S3), nil)
				res, err := l.Run(ctx, kind, args[0])
				if err != nil {
					logger.Error("Load failed", zap.Error(err))
					return err
				}
				var rows int64
				for _, n := range res.Rows {
					rows += n
				}
				logger.Info("Load finished",
					zap.String("run_id", res.RunID),
					zap.String("accession_id", res.AccessionID),
					zap.String("rows", humanize.Comma(rows)),
				)
				fmt.Fprintln(cmd.OutOrStdout(), res.AccessionID)
				return nil
			},
		})
	}
	return load
}

func newServeCmd() *cobra.Command {
	var queue int
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the operator API: queue loads, poll them, health and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			l := loader.New(store, source.NewOpener(cfg.S3), loader.NewMetrics(reg))

			jobs := handler.NewLoadJobManager(l.Run, queue)

			lc := &handler.LoadContext{Store: store, Jobs: jobs}
			mux := handler.NewRouter(lc, reg)

			// Apply middleware
			h := middle.Chain(mux, middle.RequestIDMiddleware(logger.L()), middle.LoggingMiddleware(logger.L()))

			srv := &http.Server{Addr: cfg.ListenAddr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				jobs.Run(gctx)
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			g.Go(func() error {
				logger.Info("Start:", zap.String("Version", VERSION))
				logger.Info("Server starting on", zap.String("addr", cfg.ListenAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Error starting server:", zap.String("error message", err.Error()))
					return err
				}
				return nil
			})
			return g.Wait()
		},
	}
	serve.Flags().IntVar(&queue, "queue", 16, "maximum number of loads waiting to run")
	return serve
}
