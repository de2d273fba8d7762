package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/rahnavardnetwork/sos/common/database"
	"github.com/rahnavardnetwork/sos/common/logging"
	natsclient "github.com/rahnavardnetwork/sos/common/messaging/nats"
	"github.com/rahnavardnetwork/sos/guard/internal/config"
	"github.com/rahnavardnetwork/sos/guard/internal/csrf"
	"github.com/rahnavardnetwork/sos/guard/internal/handlers"
	"github.com/rahnavardnetwork/sos/guard/internal/ipblock"
	"github.com/rahnavardnetwork/sos/guard/internal/maintenance"
	"github.com/rahnavardnetwork/sos/guard/internal/ratelimit"
	"github.com/rahnavardnetwork/sos/guard/internal/repository"
	"github.com/rahnavardnetwork/sos/guard/internal/requestguard"
	"github.com/rahnavardnetwork/sos/guard/internal/secevent"
	"github.com/rahnavardnetwork/sos/guard/internal/server"
	"github.com/rahnavardnetwork/sos/guard/internal/session"
)

// application is the fully wired guard service.
type application struct {
	handler http.Handler
	janitor *maintenance.Janitor
	repo    repository.Repository
	closers []func() error
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func buildApplication(ctx context.Context, cfg *config.Config, logger *logging.Logger) (_ *application, err error) {
	app := &application{}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	switch cfg.Database.Type {
	case config.BackendPostgres:
		pg, err := repository.NewPostgresRepository(ctx, cfg.Database.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		app.closers = append(app.closers, func() error { pg.Close(); return nil })
		app.repo = pg
	default:
		logger.Warn("using in-memory repository; reps and sessions are lost on restart")
		app.repo = repository.NewInMemoryRepository()
	}

	var rdb *redis.Client
	if cfg.Store.Backend == config.BackendRedis {
		if rdb, err = database.NewRedisClient(ctx, cfg.Redis); err != nil {
			return nil, err
		}
		app.closers = append(app.closers, rdb.Close)
	}

	var logOpts []secevent.Option
	var nats *natsclient.Client
	if cfg.NATS.Enabled {
		if nats, err = natsclient.NewClient(cfg.NATS, "sos-guard", logger); err != nil {
			return nil, err
		}
		app.closers = append(app.closers, nats.Close)
		logOpts = append(logOpts, secevent.WithNotifier(secevent.NewMessagingNotifier(nats, cfg.Notifier)))
	}
	if cfg.OpenSearch.Enabled {
		fwd, err := secevent.NewOpenSearchForwarder(cfg.OpenSearch)
		if err != nil {
			return nil, err
		}
		logOpts = append(logOpts, secevent.WithForwarder(fwd))
	}
	events := secevent.NewLog(secevent.NewMemoryStore(cfg.Events.Capacity, cfg.Events.PruneBatch), cfg.Events, logger.Component("secevent"), logOpts...)

	var blockOpts []ipblock.Option
	if nats != nil {
		blockOpts = append(blockOpts, ipblock.WithListener(ipblock.NewMessagingListener(nats, events.HashIdentity)))
	}
	if cfg.AMQP.Enabled {
		broadcaster, err := ipblock.NewAMQPBroadcaster(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, broadcaster.Close)
		blockOpts = append(blockOpts, ipblock.WithListener(broadcaster))
	}

	var (
		blockStore     ipblock.Store
		rateStore      ratelimit.Store
		csrfStore      csrf.Store
		challengeStore session.ChallengeStore
	)
	policies := cfg.RateLimit.Policies()
	if rdb != nil {
		blockStore = ipblock.NewRedisStore(rdb)
		rateStore = ratelimit.NewRedisStore(rdb)
		csrfStore = csrf.NewRedisStore(rdb)
		challengeStore = session.NewRedisChallengeStore(rdb)
	} else {
		blockStore = ipblock.NewMemoryStore()
		rateStore = ratelimit.NewMemoryStore(cfg.RateLimit.MemoryBuckets, ratelimit.IdleTTL(policies))
		csrfStore = csrf.NewMemoryStore()
		challengeStore = session.NewMemoryChallengeStore()
	}

	blocks := ipblock.NewRegistry(blockStore, cfg.IPBlock, logger.Component("ipblock"), blockOpts...)
	limiter := ratelimit.NewLimiter(rateStore, policies)
	csrfGuard := csrf.NewGuard(csrfStore, cfg.CSRF)
	mfa := session.NewMFA(challengeStore, cfg.MFA, nil)

	issuer, err := session.NewTokenIssuer(cfg.Token, nil)
	if err != nil {
		return nil, err
	}
	sessions := session.NewManager(app.repo, app.repo, issuer, events, logger.Component("session"), cfg.Session, nil)

	validator := newValidator(cfg)

	g := requestguard.New(requestguard.Deps{
		Blocks:    blocks,
		Limiter:   limiter,
		Sessions:  sessions,
		CSRF:      csrfGuard,
		Events:    events,
		Validator: validator,
	}, cfg.Guard, logger.Component("requestguard"))

	h := handlers.New(handlers.Deps{
		Guard:     g,
		Repo:      app.repo,
		Sessions:  sessions,
		MFA:       mfa,
		Codes:     handlers.LogCodeSender{Logger: logger},
		CSRF:      csrfGuard,
		Blocks:    blocks,
		Limiter:   limiter,
		Events:    events,
		Validator: validator,
		Logger:    logger,
	})

	routerCfg := server.Config{CORS: cfg.HTTP.CORS}
	if cfg.HTTP.CrossOrigin {
		routerCfg.TrustedOrigins = append([]string{}, cfg.HTTP.TrustedOrigins...)
	}
	if app.handler, err = server.NewRouter(g, h, routerCfg); err != nil {
		return nil, err
	}

	app.janitor = maintenance.NewJanitor(logger.Component("janitor"),
		maintenance.Sweep{Name: "ip_blocks", Interval: cfg.Sweeps.Blocks, Run: blocks.Sweep},
		maintenance.Sweep{Name: "csrf_tokens", Interval: cfg.Sweeps.CSRF, Run: csrfGuard.Sweep},
		maintenance.Sweep{Name: "mfa_challenges", Interval: cfg.Sweeps.MFA, Run: mfa.Sweep},
		maintenance.Sweep{Name: "security_events", Interval: cfg.Sweeps.Events, Run: events.Prune},
		maintenance.Sweep{Name: "sessions", Interval: cfg.Sweeps.Sessions, Run: sessions.SweepExpired},
	)
	return app, nil
}
