package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sbiradar/outreach-cli/internal/compose"
	"github.com/sbiradar/outreach-cli/internal/followup"
	"github.com/sbiradar/outreach-cli/internal/guard"
	"github.com/sbiradar/outreach-cli/internal/notify"
	"github.com/sbiradar/outreach-cli/internal/ranker"
	"github.com/sbiradar/outreach-cli/internal/retryresolve"
	"github.com/sbiradar/outreach-cli/internal/scheduler"
	"github.com/sbiradar/outreach-cli/internal/signals"
	"github.com/sbiradar/outreach-cli/internal/store"
	"github.com/sbiradar/outreach-cli/internal/transport"
	"github.com/sbiradar/outreach-cli/internal/verifier"
	"github.com/sbiradar/outreach-cli/pkg/anthropic"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "outreach.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// env bundles the collaborators most commands need.
type env struct {
	store     store.Store
	guard     *guard.Guard
	verifier  *verifier.Verifier
	scheduler *scheduler.Scheduler
	signals   *signals.Processor
	planner   *followup.Planner
	notifier  *notify.Notifier
}

func (e *env) Close() {
	_ = e.store.Close()
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	g := guard.New(st)
	v := verifier.New(cfg.Verifier, nil)
	r := ranker.New(cfg.Ranker)
	resolver := retryresolve.New(st, v, cfg.Retry)
	planner := followup.New(st, g, cfg.FollowUp)

	var modelClient anthropic.Client
	if cfg.Compose.UseModel && cfg.Compose.AnthropicKey != "" {
		modelClient = anthropic.NewClient(cfg.Compose.AnthropicKey)
	}
	composer := compose.New(cfg.Compose, modelClient)

	var sender transport.Sender
	if cfg.Transport.DryRun {
		sender = transport.DryRunSender{}
	} else {
		sender = transport.NewSMTPSender(cfg.Transport)
	}

	profile, err := ranker.LoadProfile(cfg.Ranker.SkillProfilePath)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load skill profile")
	}

	notifier := notify.New(cfg.Notify)
	sched := scheduler.New(scheduler.Deps{
		Store:    st,
		Guard:    g,
		Verifier: v,
		Ranker:   r,
		Composer: composer,
		Sender:   sender,
		Planner:  planner,
		Resolver: resolver,
		Notifier: notifier,
		Profile:  profile,
	}, cfg.Scheduler)

	return &env{
		store:     st,
		guard:     g,
		verifier:  v,
		scheduler: sched,
		signals:   signals.New(st, g, resolver),
		planner:   planner,
		notifier:  notifier,
	}, nil
}
