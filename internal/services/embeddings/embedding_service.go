package embeddings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/Inclusist/job-monitor-sub000/internal/common"
	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/services/llm"
)

// Service implements EmbeddingService over the Gemini embedding API.
// Client initialization is deferred to first use: a matching run reports a
// distinct loading stage while the first caller pays the startup cost, and
// every later caller reuses the same client.
type Service struct {
	embedConfig  *common.EmbeddingsConfig
	geminiConfig *common.GeminiConfig
	storage      interfaces.StorageManager
	logger       arbor.ILogger

	initOnce sync.Once
	initErr  error
	client   *genai.Client

	retry *llm.RetryConfig
}

// NewService creates the embedding service. No network work happens here;
// call Warm or any Embed method to initialize.
func NewService(embedConfig *common.EmbeddingsConfig, geminiConfig *common.GeminiConfig, storage interfaces.StorageManager, logger arbor.ILogger) interfaces.EmbeddingService {
	if embedConfig.Model == "" {
		embedConfig.Model = "gemini-embedding-001"
	}
	if embedConfig.Dimension <= 0 {
		embedConfig.Dimension = 768
	}
	if embedConfig.BatchSize <= 0 {
		embedConfig.BatchSize = 32
	}
	return &Service{
		embedConfig:  embedConfig,
		geminiConfig: geminiConfig,
		storage:      storage,
		logger:       logger,
		retry:        llm.NewDefaultRetryConfig(),
	}
}

// Warm forces client initialization without embedding anything.
func (s *Service) Warm(ctx context.Context) error {
	return s.ensureClient(ctx)
}

// Embed generates a vector for a single text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates vectors for a slice of texts, splitting into
// API-sized batches. The result is index-aligned with the input.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("text at index %d is empty", i)
		}
	}
	if err := s.ensureClient(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	vectors := make([][]float32, 0, len(texts))
	for offset := 0; offset < len(texts); offset += s.embedConfig.BatchSize {
		end := offset + s.embedConfig.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := s.embedOnce(ctx, texts[offset:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	s.logger.Debug().
		Int("texts", len(texts)).
		Int("dimension", s.embedConfig.Dimension).
		Dur("duration", time.Since(start)).
		Msg("Embedding batch completed")

	return vectors, nil
}

// Dimension returns the configured output dimensionality.
func (s *Service) Dimension() int {
	return s.embedConfig.Dimension
}

// ModelVersion identifies the model for cache keying; a model change
// invalidates all cached vectors.
func (s *Service) ModelVersion() string {
	return fmt.Sprintf("%s@%d", s.embedConfig.Model, s.embedConfig.Dimension)
}

func (s *Service) ensureClient(ctx context.Context) error {
	s.initOnce.Do(func() {
		initCtx, cancel := context.WithTimeout(ctx, common.DefaultModelLoadTimeout)
		defer cancel()

		apiKey, err := common.ResolveAPIKey(initCtx, s.storage.KeyValueStorage(), "gemini_api_key", s.geminiConfig.APIKey)
		if err != nil {
			s.initErr = fmt.Errorf("Gemini API key is required for embeddings: %w", err)
			return
		}

		client, err := genai.NewClient(initCtx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			s.initErr = fmt.Errorf("failed to initialize embedding client: %w", err)
			return
		}
		s.client = client

		s.logger.Info().
			Str("model", s.embedConfig.Model).
			Int("dimension", s.embedConfig.Dimension).
			Msg("Embedding client initialized")
	})
	return s.initErr
}

func (s *Service) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	outputDim := int32(s.embedConfig.Dimension)
	config := &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	var result *genai.EmbedContentResponse
	err := llm.WithRateLimitRetry(ctx, s.retry, func() error {
		var embedErr error
		result, embedErr = s.client.Models.EmbedContent(ctx, s.embedConfig.Model, contents, config)
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}
	if result == nil || len(result.Embeddings) != len(texts) {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), got)
	}

	vectors := make([][]float32, len(texts))
	for i, e := range result.Embeddings {
		if len(e.Values) != s.embedConfig.Dimension {
			return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.embedConfig.Dimension, len(e.Values))
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}
