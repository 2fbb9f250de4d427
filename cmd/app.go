package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"transhot/internal/archive"
	"transhot/internal/auth"
	"transhot/internal/config"
	"transhot/internal/llm"
	"transhot/internal/logger"
	"transhot/internal/ocr"
	"transhot/internal/pipeline"
	"transhot/internal/snapshot"
	"transhot/internal/store"
	"transhot/pkg/models"
)

// app holds the collaborators shared by the pipeline commands.
type app struct {
	cfg        *config.Config
	store      store.Store
	recognizer ocr.Recognizer
	orch       *pipeline.Orchestrator
	log        zerolog.Logger
}

func loadedConfig() (*config.Config, error) {
	if appConfig == nil {
		return nil, errors.New("configuration could not be loaded. Check TRANSHOT_CONFIG and the environment variables listed in --help")
	}
	return appConfig, nil
}

// openStore opens the configured backend, honoring the --store override.
func openStore(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (store.Store, error) {
	backend := cfg.StoreBackend
	if override, _ := cmd.Flags().GetString("store"); override != "" {
		backend = override
	}

	st, err := store.Open(ctx, store.Options{
		Backend: backend,
		DBPath:  cfg.DBPath,
		Redis: store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", backend, err)
	}
	return st, nil
}

// newApp wires the store, recognizer, chat clients and orchestrator.
func newApp(ctx context.Context, cmd *cobra.Command, log zerolog.Logger) (*app, error) {
	cfg, err := loadedConfig()
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cmd, cfg)
	if err != nil {
		return nil, err
	}
	applyDebugMode(ctx, st, cfg, log)

	recognizer, err := createRecognizer(ctx, cfg, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	factory := llm.NewOpenAIFactory(cfg.OpenAIBaseURL, nil)
	deps := pipeline.Deps{
		Store:      st,
		Snapshots:  snapshot.NewExtractor(nil, snapshot.NewLocalFetcher(nil)),
		Resolver:   auth.NewResolver(),
		Recognizer: recognizer,
		Translator: llm.NewTranslator(factory),
		Context:    llm.NewContextGenerator(factory),
	}
	if cfg.ArchiveDir != "" {
		deps.Archive = archive.NewFileArchiver(cfg.ArchiveDir)
	}

	orch, err := pipeline.New(ctx, deps, pipeline.Options{
		Defaults:             cfg.Settings(),
		OnCredentialsMissing: credentialsHint,
		OnPhase: func(el *models.Element, phase pipeline.Phase) {
			log.Debug().Str("kind", string(el.Kind)).Str("phase", string(phase)).Msg("Pipeline phase")
		},
	})
	if err != nil {
		closeRecognizer(recognizer)
		_ = st.Close()
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}

	return &app{cfg: cfg, store: st, recognizer: recognizer, orch: orch, log: log}, nil
}

// applyDebugMode turns on debug logging when the stored debug-mode setting
// is set. A store that cannot be read leaves the level unchanged.
func applyDebugMode(ctx context.Context, st store.Store, cfg *config.Config, log zerolog.Logger) {
	s, err := pipeline.LoadSettings(ctx, st, cfg.Settings())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read debug mode setting")
		return
	}
	if s.DebugMode && logger.EnableDebug() {
		log.Debug().Msg("Debug mode enabled from stored settings")
	}
}

func (a *app) Close() {
	a.orch.Close()
	closeRecognizer(a.recognizer)
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close store")
	}
}

// createRecognizer builds the Vision client for the configured transport.
func createRecognizer(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ocr.Recognizer, error) {
	switch cfg.VisionTransport {
	case "grpc":
		r, err := ocr.NewGRPCRecognizer(ctx, cfg.VisionEndpoint)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create gRPC Vision client")
			return nil, fmt.Errorf("failed to create Vision client: %w", err)
		}
		return r, nil
	default:
		return ocr.NewRESTRecognizer(cfg.VisionEndpoint, nil), nil
	}
}

func closeRecognizer(r ocr.Recognizer) {
	if c, ok := r.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

func credentialsHint(service string) {
	switch service {
	case "chat":
		fmt.Fprintln(os.Stderr, "OpenAI API key is not configured. Set OPENAI_API_KEY or run:\n"+
			"  transhot settings set chat-api-key <key>")
	default:
		fmt.Fprintln(os.Stderr, "Google Cloud Vision credentials are not configured. Set one of:\n\n"+
			"1. GOOGLE_VISION_API_KEY with an API key\n"+
			"2. GOOGLE_APPLICATION_CREDENTIALS with the path to a service account JSON file\n"+
			"3. GOOGLE_CREDENTIALS with inline JSON\n\n"+
			"or store a credentials document with:\n"+
			"  transhot settings import-credentials <file>")
	}
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(cmd *cobra.Command, log zerolog.Logger) (context.Context, context.CancelFunc) {
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
