package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mfalconi/lingotutor/internal/config"
	"github.com/mfalconi/lingotutor/internal/conversation"
	"github.com/mfalconi/lingotutor/internal/genlang"
	"github.com/mfalconi/lingotutor/internal/httpapi"
	"github.com/mfalconi/lingotutor/internal/mediastore"
	"github.com/mfalconi/lingotutor/internal/observability"
	"github.com/mfalconi/lingotutor/internal/pronunciation"
	"github.com/mfalconi/lingotutor/internal/store"
)

type BuildResult struct {
	Config  config.Config
	API     *httpapi.Server
	Store   store.Store
	Metrics *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Printf("store: in-memory (DATABASE_URL not set)")
	} else {
		log.Printf("store: postgres")
	}

	generator, err := genlang.NewGenerator(ctx, genlang.Config{
		Mode:    cfg.GeneratorMode,
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		HTTPURL: cfg.GeneratorHTTPURL,
		Timeout: cfg.ModelTimeout,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("generator init failed: %w", err)
	}

	uploader, err := buildUploader(ctx, cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	conversations := conversation.NewService(st, generator, metrics, cfg.ContextTurns)
	pronunciations := pronunciation.NewService(st, generator, uploader, metrics)

	api := httpapi.New(cfg, st, conversations, pronunciations, metrics)

	cleanup := func() error {
		return st.Close()
	}

	return &BuildResult{
		Config:  cfg,
		API:     api,
		Store:   st,
		Metrics: metrics,
		Cleanup: cleanup,
	}, nil
}

func buildUploader(ctx context.Context, cfg config.Config) (mediastore.Uploader, error) {
	if strings.TrimSpace(cfg.S3AccessKey) == "" || strings.TrimSpace(cfg.S3SecretKey) == "" {
		log.Printf("media store: in-memory (S3 credentials not set)")
		return mediastore.NewMemoryUploader(), nil
	}
	uploader, err := mediastore.NewS3Uploader(ctx, mediastore.S3Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		Bucket:        cfg.S3Bucket,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		PublicBaseURL: cfg.S3PublicBaseURL,
		Timeout:       cfg.UploadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("media store init failed: %w", err)
	}
	log.Printf("media store: s3 bucket %s", cfg.S3Bucket)
	return uploader, nil
}
