package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sandevgo/ctxkeeper/internal/config"
	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/internal/providers/llm"
	"github.com/sandevgo/ctxkeeper/internal/service/agent"
	"github.com/sandevgo/ctxkeeper/internal/service/budget"
	"github.com/sandevgo/ctxkeeper/internal/service/generation"
	"github.com/sandevgo/ctxkeeper/internal/storage/files"
	"github.com/sandevgo/ctxkeeper/internal/storage/sqlite"
	"github.com/sandevgo/ctxkeeper/pkg/log"
)

// storage bundles the persistence side shared by all subcommands.
type storage struct {
	db    *sql.DB
	repo  *sqlite.SessionsRepo
	files *files.Store
}

func loadConfig(ctx context.Context) (*config.AppConfig, error) {
	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		return nil, fmt.Errorf("failed to init env: %w", err)
	}
	return config.NewAppConfig()
}

func openStorage(ctx context.Context, cfg *config.AppConfig) (*storage, error) {
	if err := os.MkdirAll(cfg.GetRuntimePath(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	db, err := sqlite.NewDB(ctx, cfg.GetDatabasePath())
	if err != nil {
		return nil, err
	}

	fs, err := files.NewStore(cfg.GetContextFilesPath())
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &storage{
		db:    db,
		repo:  sqlite.NewSessionsRepo(db),
		files: fs,
	}, nil
}

// newAgent starts the generation backend and waits until it can serve.
func newAgent(ctx context.Context, cfg *config.AppConfig, st *storage) (*agent.Agent, error) {
	logger := log.FromCtx(ctx)

	est := budget.NewEstimator(cfg.CharsPerToken, cfg.MessageOverhead)
	backend, err := llm.NewBackend(ctx, cfg.Backend, est)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generation backend: %w", err)
	}

	pipeline := generation.NewPipeline(backend, cfg.Backend.StreamBuffer)

	readyCtx, cancel := context.WithTimeout(ctx, cfg.Backend.ReadyTimeout)
	defer cancel()
	logger.Info().Dur("timeout", cfg.Backend.ReadyTimeout).Msg("waiting for generation backend")
	if err := pipeline.WaitReady(readyCtx, generation.DefaultReadyInterval); err != nil {
		return nil, err
	}

	return agent.NewAgent(cfg, st.repo, st.files, pipeline), nil
}

// sessionParams applies the selected personality profile to the configured defaults.
func sessionParams(cfg *config.AppConfig, profile string) (core.GenerationParams, error) {
	profiles, err := config.LoadProfiles(cfg.GetProfilesPath())
	if err != nil {
		return core.GenerationParams{}, err
	}
	p, err := profiles.Get(profile)
	if err != nil {
		return core.GenerationParams{}, err
	}
	return p.Apply(cfg.DefaultParams()), nil
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}

// withStorage runs fn with config and storage for commands that do not talk
// to the generation backend.
func withStorage(ctx context.Context, fn func(ctx context.Context, cfg *config.AppConfig, st *storage) error) error {
	ctx, flushLog := setupLogger(ctx)
	defer flushLog()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	st, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.db.Close(); err != nil {
			log.FromCtx(ctx).Error().Err(err).Msg("failed to close database")
		}
	}()

	return fn(ctx, cfg, st)
}
