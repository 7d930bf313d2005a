package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/libseat/internal/auth"
	"github.com/example/libseat/internal/jobs"
	"github.com/example/libseat/internal/lock"
	"github.com/example/libseat/internal/reservation"
	"github.com/example/libseat/internal/scheduler"
	"github.com/example/libseat/internal/secret"
	"github.com/example/libseat/internal/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool
	var workers int

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the web UI + scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer func() { _ = e.log.Sync() }()
			if err := e.cfg.RequireServer(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := e.openDB(ctx, migrateUp)
			if err != nil {
				return err
			}
			defer d.Close()

			box, err := secret.New(e.cfg.CredEncKey)
			if err != nil {
				return err
			}
			r, err := e.resolver()
			if err != nil {
				return err
			}

			var locker lock.Locker = lock.Nop{}
			if e.cfg.RedisAddr != "" {
				rdb, err := lock.Dial(ctx, e.cfg.RedisAddr, e.cfg.RedisPassword, e.cfg.RedisDB)
				if err != nil {
					return err
				}
				defer rdb.Close()
				locker = lock.NewRedis(rdb, lockTTL(e.policy()))
			}

			outcomes, closePub, err := e.publisher()
			if err != nil {
				return err
			}
			defer closePub()

			authStore := auth.NewStore(d, e.cfg.CookieHashKey, e.cfg.CookieBlockKey)
			jobRepo := jobs.NewRepo(d)

			s := &scheduler.Scheduler{
				Store:        jobRepo,
				Resolver:     r,
				Secrets:      box,
				NewTransport: e.newTransport,
				Locker:       locker,
				Outcomes:     outcomes,
				SessionOptions: []reservation.Option{
					reservation.WithPolicy(e.policy()),
					reservation.WithLocation(e.cfg.Location),
				},
				Interval:      e.cfg.PollInterval,
				MaxConcurrent: workers,
				StaleAfter:    lockTTL(e.policy()),
				Log:           e.log.Named("scheduler"),
			}
			ws := &web.Server{
				Auth:     authStore,
				Jobs:     jobRepo,
				Seats:    r,
				Secrets:  box,
				Location: e.cfg.Location,
				BaseURL:  e.cfg.BaseURL,
				Log:      e.log.Named("web"),
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := s.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				defer cancel()
				return web.Start(gctx, e.cfg.ListenAddr, ws.Routes(), e.log)
			})
			err = g.Wait()
			e.log.Info("shutdown complete", zap.Error(err))
			return err
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().IntVar(&workers, "workers", 4, "jobs run concurrently")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
