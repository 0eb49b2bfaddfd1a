package executor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/pkg/embedding"
)

// defaultSimilarityThreshold is the cosine similarity above which a
// free-form answer counts as matching the reference answer.
const defaultSimilarityThreshold = 0.8

// EmbeddingCheckExecutor compares the submitted answer text against the
// action's stored answer embedding.
type EmbeddingCheckExecutor struct {
	comparer  embedding.Comparer
	threshold float64
	logger    zerolog.Logger
}

// NewEmbeddingCheckExecutor constructs the embedding-check executor. A zero
// threshold uses the default.
func NewEmbeddingCheckExecutor(comparer embedding.Comparer, threshold float64, logger zerolog.Logger) *EmbeddingCheckExecutor {
	if threshold <= 0 {
		threshold = defaultSimilarityThreshold
	}
	return &EmbeddingCheckExecutor{
		comparer:  comparer,
		threshold: threshold,
		logger:    logger.With().Str("component", "embedding_check_executor").Logger(),
	}
}

// Kind implements Executor.
func (e *EmbeddingCheckExecutor) Kind() models.ActionKind { return models.ActionKindEmbeddingCheck }

// Execute embeds the answer and checks similarity against the threshold.
func (e *EmbeddingCheckExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	action := req.Action
	if len(action.AnswerEmbedding) == 0 {
		return Result{}, fmt.Errorf("embedding check has no answer embedding")
	}
	if e.comparer == nil {
		return Result{}, fmt.Errorf("embedding comparer not configured")
	}

	similarity, err := e.comparer.Similarity(ctx, req.Context.Submission.Answer, action.AnswerEmbedding)
	if err != nil {
		return Result{
			Failed: 1,
			Log:    []string{fmt.Sprintf("similarity check failed: %s", err.Error())},
		}, nil
	}

	out := Result{Log: []string{fmt.Sprintf("answer similarity %.3f (threshold %.2f)", similarity, e.threshold)}}
	if similarity >= e.threshold {
		out.Passed++
		if action.Text != "" {
			out.Text = append(out.Text, action.Text)
		}
	} else {
		out.Failed++
		if action.TextOnMismatch != "" {
			out.Text = append(out.Text, action.TextOnMismatch)
		}
	}
	return out, nil
}
