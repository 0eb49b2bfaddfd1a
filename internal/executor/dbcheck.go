package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gradeflow-api/internal/models"
)

// DatabaseCheckExecutor runs the action's SQL against the student's database
// file and compares the serialized rows to the expected result.
type DatabaseCheckExecutor struct {
	dataRoot string
	logger   zerolog.Logger
}

// NewDatabaseCheckExecutor constructs the database-check executor. dataRoot
// is the directory student database files are resolved under, keyed by the
// action's database file label.
func NewDatabaseCheckExecutor(dataRoot string, log zerolog.Logger) *DatabaseCheckExecutor {
	return &DatabaseCheckExecutor{
		dataRoot: dataRoot,
		logger:   log.With().Str("component", "database_check_executor").Logger(),
	}
}

// Kind implements Executor.
func (e *DatabaseCheckExecutor) Kind() models.ActionKind { return models.ActionKindDatabaseCheck }

// Execute opens the labelled database read-only, runs the action's query and
// checks the result. Only the sqlite dialect is supported locally; other
// dialects are rejected rather than guessed at.
func (e *DatabaseCheckExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	action := req.Action
	if action.Code == "" {
		return Result{}, fmt.Errorf("database check has no query")
	}

	dialect := strings.ToLower(strings.TrimSpace(action.DatabaseDialect))
	if dialect != "" && dialect != "sqlite" && dialect != "sqlite3" {
		return Result{}, fmt.Errorf("unsupported database dialect %q", action.DatabaseDialect)
	}

	label := filepath.Base(strings.TrimSpace(action.DatabaseFileLabel))
	if label == "" || label == "." {
		return Result{}, fmt.Errorf("database check has no file label")
	}

	dsn := fmt.Sprintf("file:%s?mode=ro", filepath.Join(e.dataRoot, label))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return Result{}, fmt.Errorf("open database %q: %w", label, err)
	}
	defer func() {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	}()

	var rows []map[string]interface{}
	if err := db.WithContext(ctx).Raw(action.Code).Scan(&rows).Error; err != nil {
		return Result{
			Failed: 1,
			Log:    []string{fmt.Sprintf("query failed: %s", err.Error())},
		}, nil
	}

	serialized, err := json.Marshal(rows)
	if err != nil {
		return Result{}, fmt.Errorf("serialize rows: %w", err)
	}

	out := Result{Log: []string{fmt.Sprintf("query returned %d rows", len(rows))}}

	expected := strings.TrimSpace(action.Text)
	if expected == "" || jsonEqual(expected, string(serialized)) {
		out.Passed++
		if expected != "" {
			out.Text = append(out.Text, "database check passed")
		} else {
			out.Text = append(out.Text, string(serialized))
		}
		return out, nil
	}

	out.Failed++
	if action.TextOnMismatch != "" {
		out.Text = append(out.Text, action.TextOnMismatch)
	} else {
		out.Text = append(out.Text, "database check failed")
	}
	out.Log = append(out.Log, fmt.Sprintf("expected %s, got %s", expected, serialized))
	return out, nil
}

// jsonEqual compares two JSON documents structurally so formatting
// differences in the stored expectation do not fail the check.
func jsonEqual(a, b string) bool {
	var left, right interface{}
	if err := json.Unmarshal([]byte(a), &left); err != nil {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	if err := json.Unmarshal([]byte(b), &right); err != nil {
		return false
	}
	leftNorm, errA := json.Marshal(left)
	rightNorm, errB := json.Marshal(right)
	return errA == nil && errB == nil && string(leftNorm) == string(rightNorm)
}
