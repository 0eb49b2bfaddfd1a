// Package embedding compares free-form student answers against a reference
// answer vector using OpenAI embeddings and cosine similarity.
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	embedDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gradeflow",
		Subsystem: "embedding",
		Name:      "request_duration_seconds",
		Help:      "Duration of embedding requests",
	}, []string{"model"})

	embedFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gradeflow",
		Subsystem: "embedding",
		Name:      "request_failures_total",
		Help:      "Number of embedding request failures",
	}, []string{"model"})
)

// Comparer turns an answer text into a similarity score against a stored
// reference vector.
type Comparer interface {
	Similarity(ctx context.Context, text string, answer []float32) (float64, error)
}

// Config defines configuration options for the OpenAI comparer.
type Config struct {
	APIKey string
	Model  openai.EmbeddingModel
	Logger zerolog.Logger
}

// OpenAIComparer implements Comparer against the OpenAI embeddings API.
type OpenAIComparer struct {
	client *openai.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIComparer builds a comparer using the provided configuration.
func NewOpenAIComparer(cfg Config) (*OpenAIComparer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.SmallEmbedding3
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &OpenAIComparer{
		client: openai.NewClientWithConfig(openai.DefaultConfig(cfg.APIKey)),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gradeflow-api/pkg/embedding"),
		logger: logger,
	}, nil
}

// Similarity embeds the text and returns its cosine similarity to the answer
// vector, in [-1, 1].
func (c *OpenAIComparer) Similarity(parent context.Context, text string, answer []float32) (float64, error) {
	ctx, span := c.tracer.Start(parent, "embedding.similarity", trace.WithAttributes(
		attribute.String("model", string(c.cfg.Model)),
	))
	defer span.End()

	start := time.Now()
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: c.cfg.Model,
		Input: []string{text},
	})
	embedDuration.WithLabelValues(string(c.cfg.Model)).Observe(time.Since(start).Seconds())
	if err != nil {
		embedFailures.WithLabelValues(string(c.cfg.Model)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("create embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		err := fmt.Errorf("no embedding returned")
		span.RecordError(err)
		return 0, err
	}

	similarity, err := Cosine(resp.Data[0].Embedding, answer)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	span.SetAttributes(attribute.Float64("embedding.similarity", similarity))
	return similarity, nil
}

// Cosine computes the cosine similarity of two vectors of equal length.
func Cosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("vectors must be non-empty")
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector lengths differ: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("zero-magnitude vector")
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
