// Package executor hosts the per-kind check executors the pipeline
// evaluator dispatches to. Each executor handles exactly one action kind and
// folds its outcome into a Result; sequencing, conditions and short-circuit
// logic live in the evaluation service, not here.
package executor

import (
	"context"
	"fmt"

	"github.com/noah-isme/gradeflow-api/internal/models"
)

// Submission is the student work a pipeline runs against.
type Submission struct {
	StudentID uint
	Language  string
	Source    string
	Answer    string
}

// PipelineContext is the accumulated state visible to an action: everything
// earlier actions produced plus the submission itself.
type PipelineContext struct {
	Submission Submission
	Text       []string
	Log        []string
	Score      *float64
	Passed     int
	Failed     int
	StaffMode  bool
}

// Env flattens the context into the environment condition and scoring
// expressions evaluate against.
func (c PipelineContext) Env() map[string]interface{} {
	score := 0.0
	if c.Score != nil {
		score = *c.Score
	}
	return map[string]interface{}{
		"text":      append([]string(nil), c.Text...),
		"log":       append([]string(nil), c.Log...),
		"score":     score,
		"has_score": c.Score != nil,
		"passed":    int64(c.Passed),
		"failed":    int64(c.Failed),
		"total":     int64(c.Passed + c.Failed),
		"answer":    c.Submission.Answer,
		"language":  c.Submission.Language,
		"submission": map[string]interface{}{
			"student_id": int64(c.Submission.StudentID),
			"language":   c.Submission.Language,
			"source":     c.Submission.Source,
			"answer":     c.Submission.Answer,
		},
	}
}

// Request is one action execution.
type Request struct {
	Action  models.Action
	Context PipelineContext
}

// Result is what an executor contributes back to the pipeline. Passed and
// Failed are counted-check contributions; Score, when set, is an
// authoritative override (score expressions are last-writer).
type Result struct {
	Text   []string
	Log    []string
	Score  *float64
	Passed int
	Failed int
}

// Executor runs the content of a single action kind.
type Executor interface {
	Kind() models.ActionKind
	Execute(ctx context.Context, req Request) (Result, error)
}

// Registry resolves executors by action kind.
type Registry struct {
	executors map[models.ActionKind]Executor
}

// NewRegistry indexes the provided executors. Registering two executors for
// the same kind is a programming error.
func NewRegistry(executors ...Executor) (*Registry, error) {
	index := make(map[models.ActionKind]Executor, len(executors))
	for _, exec := range executors {
		if _, dup := index[exec.Kind()]; dup {
			return nil, fmt.Errorf("duplicate executor for kind %q", exec.Kind())
		}
		index[exec.Kind()] = exec
	}
	return &Registry{executors: index}, nil
}

// For returns the executor registered for the kind.
func (r *Registry) For(kind models.ActionKind) (Executor, bool) {
	exec, ok := r.executors[kind]
	return exec, ok
}
