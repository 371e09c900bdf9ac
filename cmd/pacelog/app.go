package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pacelog/pacelog/internal/attach"
	"github.com/pacelog/pacelog/internal/config"
	"github.com/pacelog/pacelog/internal/db"
	"github.com/pacelog/pacelog/internal/remote"
	"github.com/pacelog/pacelog/internal/repo"
	pacesync "github.com/pacelog/pacelog/internal/sync"
)

// app holds everything a command needs, wired from the config.
type app struct {
	db     *db.DB
	store  *repo.Store
	client *remote.Client
	driver *pacesync.Driver
	icons  *attach.Channel
	logger *zap.SugaredLogger
}

func chunkSizes(c *config.Config) pacesync.ChunkSizes {
	return pacesync.ChunkSizes{
		Activities:    c.Chunk.Activities,
		ActivityKinds: c.Chunk.ActivityKinds,
		Goals:         c.Chunk.Goals,
		Tasks:         c.Chunk.Tasks,
		ActivityLogs:  c.Chunk.ActivityLogs,
	}
}

func openApp(ctx context.Context, c *config.Config, logger *zap.SugaredLogger) (*app, error) {
	database, err := db.Open(c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.InitSchemaContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	store := repo.New(database)
	client := remote.NewClient(nil, c.ServerURL, c.Token, logger)

	return &app{
		db:     database,
		store:  store,
		client: client,
		driver: pacesync.NewDriver(store, client, chunkSizes(c), logger),
		icons:  attach.New(store.Activities, store.Icons, client, logger),
		logger: logger,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
