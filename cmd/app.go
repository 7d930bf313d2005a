package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/libseat/internal/config"
	"github.com/example/libseat/internal/db"
	"github.com/example/libseat/internal/library"
	"github.com/example/libseat/internal/logging"
	"github.com/example/libseat/internal/migrate"
	"github.com/example/libseat/internal/notify"
	"github.com/example/libseat/internal/reservation"
	"github.com/example/libseat/internal/seat"
)

// env is what every command starts from.
type env struct {
	cfg config.Config
	log *zap.Logger
}

func loadEnv() (env, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return env{}, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return env{}, err
	}
	return env{cfg: cfg, log: log}, nil
}

func (e env) resolver() (*seat.Resolver, error) {
	if e.cfg.RoomsFile == "" {
		return seat.NewResolver(seat.DefaultTable()), nil
	}
	t, err := seat.LoadTable(e.cfg.RoomsFile)
	if err != nil {
		return nil, err
	}
	e.log.Info("room table loaded", zap.String("path", e.cfg.RoomsFile), zap.Int("rooms", len(t.Rooms())))
	return seat.NewResolver(t), nil
}

func (e env) endpoint() library.Endpoint {
	ep := library.DefaultEndpoint()
	if e.cfg.LibraryBaseURL != "" {
		ep.BaseURL = e.cfg.LibraryBaseURL
	}
	if e.cfg.ViewState != "" {
		ep.ViewState = e.cfg.ViewState
	}
	if e.cfg.ViewStateGenerator != "" {
		ep.ViewStateGenerator = e.cfg.ViewStateGenerator
	}
	if e.cfg.EventValidation != "" {
		ep.EventValidation = e.cfg.EventValidation
	}
	return ep
}

func (e env) newTransport() (reservation.Transport, error) {
	return library.New(e.endpoint(), e.log)
}

func (e env) policy() reservation.Policy {
	p := reservation.DefaultPolicy()
	p.MaxAttempts = e.cfg.MaxAttempts
	p.MaxUnclassified = e.cfg.MaxUnclassified
	return p
}

func (e env) openDB(ctx context.Context, migrateUp bool) (*db.DB, error) {
	d, err := db.Open(ctx, e.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if migrateUp {
		if err := migrate.Up(ctx, d, e.log); err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}

// publisher dials AMQP when configured. The returned notifier factory is nil
// otherwise.
func (e env) publisher() (func(int64) reservation.Notifier, func(), error) {
	if e.cfg.AMQPURL == "" {
		return nil, func() {}, nil
	}
	p, err := notify.Dial(e.cfg.AMQPURL, notify.DefaultQueue, e.log)
	if err != nil {
		return nil, nil, err
	}
	return p.Outcomes, func() { _ = p.Close() }, nil
}

// lockTTL covers the longest run the policy allows.
func lockTTL(p reservation.Policy) time.Duration {
	return p.MaxRun() + 5*time.Minute
}
