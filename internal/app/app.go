// Package app wires the storage, caches and services behind the chat app.
package app

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"storyline/internal/chatapp"
	"storyline/internal/config"
	"storyline/internal/db"
	"storyline/internal/engine"
	"storyline/internal/logging"
	"storyline/internal/migrate"
	"storyline/internal/textgen"
	"storyline/internal/usercache"
)

type Options struct {
	Workspace string
	InMemory  bool
	// Config overrides the workspace storyline.yml when set.
	Config *config.Config
	Log    logging.Logger
	// Generator replaces the configured text model, mainly for tests.
	Generator textgen.Generator
}

// Runtime holds everything a server or command needs for one workspace.
type Runtime struct {
	DB     *sqlx.DB
	Config *config.Config
	Engine engine.Engine
	Chat   *chatapp.App
	Cache  *usercache.RedisCache
	Log    logging.Logger
}

// Open loads config, migrates the database and builds the services.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	log := opts.Log
	if log == nil {
		log = logging.NewNopLogger()
	}
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.LoadOptional(opts.Workspace); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace, InMemory: opts.InMemory})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := migrate.Migrate(ctx, conn.DB); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	rt := &Runtime{DB: conn, Config: cfg, Log: log}

	eng := engine.New(conn, cfg)
	eng.Log = log.With("component", "engine")
	if cfg.Cache.RedisURL != "" {
		cache, err := usercache.NewRedisCache(cfg.Cache.RedisURL, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
		if err != nil {
			conn.Close()
			return nil, err
		}
		rt.Cache = cache
		eng.Cache = cache
	}
	rt.Engine = eng

	gen := opts.Generator
	if gen == nil {
		if gen, err = newGenerator(ctx, cfg.TextGen, log); err != nil {
			rt.Close()
			return nil, err
		}
	}
	rt.Chat = chatapp.New(eng, eng, eng, textgen.NewService(gen), log.With("component", "chatapp"))
	return rt, nil
}

func newGenerator(ctx context.Context, cfg config.TextGenConfig, log logging.Logger) (textgen.Generator, error) {
	if !cfg.Enabled() {
		log.Infow("text generation disabled, no textgen.project configured")
		return textgen.Disabled{}, nil
	}
	client, err := textgen.NewVertexClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Infow("text generation enabled", "model", cfg.Model, "location", cfg.Location)
	return client, nil
}

// Close releases the cache connection and the database.
func (r *Runtime) Close() error {
	var result *multierror.Error
	if r.Cache != nil {
		if err := r.Cache.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
