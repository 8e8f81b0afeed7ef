package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sadopc/autotrackr/internal/api"
	"github.com/sadopc/autotrackr/internal/config"
	"github.com/sadopc/autotrackr/internal/detector"
	"github.com/sadopc/autotrackr/internal/matcher"
	"github.com/sadopc/autotrackr/internal/merger"
	"github.com/sadopc/autotrackr/internal/store"
)

// app bundles the engine components every command works against.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    *store.Store
	matcher  *matcher.Matcher
	detector *detector.Detector
	pool     *merger.Pool
	service  *api.Service

	cleanup func()
}

type appOptions struct {
	// tui sends logs to the configured file, or drops them.
	tui bool
}

func openApp(opts appOptions) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var logger zerolog.Logger
	cleanup := func() {}
	if opts.tui && cfg.Logging.File == "" {
		logger = discardLogger()
	} else {
		logger, cleanup, err = setupLogger(cfg.Logging)
		if err != nil {
			return nil, err
		}
	}

	s, err := store.New(cfg.Storage.Path)
	if err != nil {
		cleanup()
		return nil, err
	}
	logger.Debug().Str("path", cfg.Storage.Path).Msg("Store opened")

	m, err := matcher.New(s, matcher.Config{CacheTTL: cfg.Tracking.RuleCacheTTL}, logger)
	if err != nil {
		s.Close()
		cleanup()
		return nil, err
	}
	s.OnTaxonomyChange(m.Invalidate)

	d := detector.New(s, detector.Config{MinOccurrences: cfg.Detector.MinOccurrences}, logger)
	pool := merger.NewPool(s, m, merger.Config{FlushInterval: cfg.Tracking.FlushInterval}, logger)

	svc := api.NewService(api.Options{
		Store:           s,
		Matcher:         m,
		Detector:        d,
		Pool:            pool,
		DefaultInterval: cfg.Tracking.DefaultInterval,
	}, logger)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    s,
		matcher:  m,
		detector: d,
		pool:     pool,
		service:  svc,
	}
	a.cleanup = func() {
		pool.EndAll()
		if err := s.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close store")
		}
		cleanup()
	}
	return a, nil
}

func (a *app) Close() {
	a.cleanup()
}
