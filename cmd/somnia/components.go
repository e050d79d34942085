package main

import (
	"context"
	"fmt"

	"github.com/hyperjump/somnia/internal/indexer"
	"github.com/hyperjump/somnia/internal/interpreter"
	"github.com/hyperjump/somnia/internal/keyword"
	"github.com/hyperjump/somnia/internal/llm"
	"github.com/hyperjump/somnia/internal/pipeline"
	"github.com/hyperjump/somnia/internal/search"
	"github.com/hyperjump/somnia/internal/storage"
	"github.com/hyperjump/somnia/internal/vector"
	"github.com/hyperjump/somnia/internal/worker"
	"go.uber.org/zap"
)

// components is the wired application. Pipeline is nil unless requested.
type components struct {
	Storage  *storage.SQLiteStorage
	Keyword  *keyword.BleveIndex
	Vector   *vector.MemoryIndex
	Indexer  *indexer.Indexer
	Engine   *search.Engine
	Pipeline *pipeline.Orchestrator
}

func initializeComponents(ctx context.Context, g *globals, withPipeline bool) (*components, error) {
	cfg, logger := g.cfg, g.logger
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open keyword index: %w", err)
	}
	c := &components{
		Storage: store,
		Keyword: kw,
		Vector:  vector.NewMemoryIndex(),
	}
	c.Indexer = indexer.NewIndexer(store, kw, c.Vector, indexer.WithLogger(logger))
	c.Engine = search.NewEngine(store, kw, c.Vector, &cfg.Search)

	n, err := c.Indexer.Rebuild(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("rebuild indices: %w", err)
	}
	logger.Debug("indices rebuilt", zap.Int("vectors", n))

	if withPipeline {
		c.Pipeline, err = newPipeline(ctx, g, store, c.Indexer)
		if err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func newPipeline(ctx context.Context, g *globals, store pipeline.Store, idx *indexer.Indexer) (*pipeline.Orchestrator, error) {
	cfg, logger := g.cfg, g.logger
	client, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	workerOpts := []worker.Option{
		worker.WithLogger(logger.Named("worker")),
		worker.WithTimeout(cfg.Worker.Timeout),
	}
	if g.resolvedPath != "" {
		workerOpts = append(workerOpts, worker.WithEnv(ConfigEnv+"="+g.resolvedPath))
	}
	return pipeline.New(
		store,
		interpreter.New(client, interpreter.WithLogger(logger)),
		worker.New(cfg.Worker.Command, cfg.Worker.Args, workerOpts...),
		pipeline.WithLogger(logger),
		pipeline.WithWindow(cfg.Synthesis.Window),
		pipeline.WithAnalyzedHook(idx.IndexEntry),
	), nil
}

// Close releases storage and indices.
func (c *components) Close() {
	if c.Vector != nil {
		_ = c.Vector.Close()
	}
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}
