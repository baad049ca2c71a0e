package main

import (
	"context"
	"fmt"
	"time"

	"github.com/roelfdiedericks/toolgate/internal/artifacts"
	"github.com/roelfdiedericks/toolgate/internal/config"
	"github.com/roelfdiedericks/toolgate/internal/docstore"
	"github.com/roelfdiedericks/toolgate/internal/executor"
	. "github.com/roelfdiedericks/toolgate/internal/logging"
	"github.com/roelfdiedericks/toolgate/internal/media"
	"github.com/roelfdiedericks/toolgate/internal/notebook"
	"github.com/roelfdiedericks/toolgate/internal/paths"
	"github.com/roelfdiedericks/toolgate/internal/policy"
	"github.com/roelfdiedericks/toolgate/internal/sqlgate"
	"github.com/roelfdiedericks/toolgate/internal/storage"
	"github.com/roelfdiedericks/toolgate/internal/tools"
	"github.com/roelfdiedericks/toolgate/internal/tools/websearch"
	"github.com/roelfdiedericks/toolgate/internal/types"
)

// gateway holds the long-lived services. It is opened once per process
// and shared by every turn.
type gateway struct {
	cfg       *config.Config
	db        *storage.DB
	store     docstore.Store
	policy    *policy.Policy
	executor  *executor.Executor
	sqlGate   *sqlgate.Gate
	notebook  *notebook.Notebook
	media     *media.MediaStore
	artifacts *artifacts.SQLiteStore
	cache     *websearch.RedisCache
}

func openGateway(ctx context.Context, cfg *config.Config) (*gateway, error) {
	g := &gateway{cfg: cfg}
	ready := false
	defer func() {
		if !ready {
			g.Close()
		}
	}()

	var err error
	if g.db, err = storage.Open(cfg.Store.SQLite); err != nil {
		return nil, err
	}

	switch cfg.Store.Mode {
	case config.StoreMongo:
		m, err := docstore.NewMongo(ctx, docstore.MongoConfig{
			URI:            cfg.Store.Mongo.URI,
			Database:       cfg.Store.Mongo.Database,
			ConnectTimeout: time.Duration(cfg.Store.Mongo.ConnectTimeout) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		g.store = m
	default:
		g.store = docstore.NewMemory()
		L_debug("gateway: using in-memory document store")
	}

	g.policy = policy.New(cfg.Policy)
	q := cfg.Tools.Query
	g.executor = executor.New(g.store, executor.WithFindLimits(q.DefaultLimit, q.MaxLimit))
	g.sqlGate = sqlgate.New(g.db.SQL(), g.policy)
	if q.MaxRows > 0 {
		g.sqlGate.SetMaxRows(q.MaxRows)
	}

	if g.notebook, err = openNotebook(ctx, cfg.Notebook, g.db); err != nil {
		return nil, err
	}

	if g.media, err = media.NewMediaStore(cfg.Media); err != nil {
		return nil, err
	}
	g.media.Start()
	g.artifacts = artifacts.NewSQLiteStore(g.db.SQL())

	if url := cfg.Tools.Web.RedisURL; url != "" {
		cache, cerr := websearch.NewRedisCache(ctx, url)
		if cerr != nil {
			L_warn("gateway: search cache unavailable, continuing without it", "error", cerr)
		} else {
			g.cache = cache
		}
	}

	ready = true
	L_info("gateway: ready", "store", cfg.Store.Mode, "sqlite", g.db.Path(), "media", g.media.BaseDir())
	return g, nil
}

func openNotebook(ctx context.Context, cfg config.NotebookConfig, db *storage.DB) (*notebook.Notebook, error) {
	var backend notebook.Backend
	switch cfg.Backend {
	case config.NotebookFile:
		path, err := paths.ExpandTilde(cfg.Path)
		if err != nil {
			return nil, err
		}
		backend = notebook.NewFileBackend(path)
	default:
		backend = notebook.NewSQLiteBackend(db.SQL())
	}
	nb := notebook.New(backend)

	if cfg.CoreInstruction == "" {
		return nb, nil
	}
	rec, err := nb.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read notebook: %w", err)
	}
	if rec.CoreInstruction != cfg.CoreInstruction {
		if err := nb.SetCoreInstruction(ctx, cfg.CoreInstruction); err != nil {
			return nil, fmt.Errorf("failed to set core instruction: %w", err)
		}
		L_debug("gateway: core instruction updated from config")
	}
	return nb, nil
}

// deps returns the registry dependencies. The SQL gate is only offered to
// the model when enabled in the config.
func (g *gateway) deps() tools.Deps {
	d := tools.Deps{
		Policy:    g.policy,
		Executor:  g.executor,
		Notebook:  g.notebook,
		Media:     g.media,
		Artifacts: g.artifacts,
		Config:    g.cfg.Tools,
	}
	if g.cfg.Store.EnableSQL {
		d.SQLGate = g.sqlGate
	}
	if g.cache != nil {
		d.SearchCache = g.cache
	}
	return d
}

// bundle builds the capability bundle for one turn from the config.
func (g *gateway) bundle(chatID, messageID string, notify func(types.ArtifactNotice)) tools.Bundle {
	b := tools.Bundle{
		SearchAPIKey: g.cfg.Tools.Web.BraveAPIKey,
		ChatID:       chatID,
		MessageID:    messageID,
		Notify:       notify,
	}
	if g.cfg.Tools.Image.Enabled {
		settings := g.cfg.Tools.Image.Default
		b.Generation = &settings
	}
	return b
}

func (g *gateway) registry(chatID, messageID string, notify func(types.ArtifactNotice)) *tools.Registry {
	return tools.Build(g.deps(), g.bundle(chatID, messageID, notify))
}

// Close releases everything opened by openGateway. Safe on a partially
// opened gateway.
func (g *gateway) Close() {
	if g.cache != nil {
		if err := g.cache.Close(); err != nil {
			L_debug("gateway: redis close", "error", err)
		}
	}
	if g.media != nil {
		g.media.Close()
	}
	if g.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := g.store.Close(ctx); err != nil {
			L_warn("gateway: document store close", "error", err)
		}
		cancel()
	}
	if g.db != nil {
		if err := g.db.Close(); err != nil {
			L_warn("gateway: sqlite close", "error", err)
		}
	}
}
