package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/pkg/sandbox"
)

// LanguageConfig maps a language to its sandbox image and entrypoint.
type LanguageConfig struct {
	Image    string
	FileName string
	Command  []string
}

// DefaultLanguages returns the supported sandbox languages.
func DefaultLanguages() map[string]LanguageConfig {
	return map[string]LanguageConfig{
		"python": {
			Image:    "python:3.11-alpine",
			FileName: "main.py",
			Command:  []string{"python", "main.py"},
		},
		"javascript": {
			Image:    "node:20-alpine",
			FileName: "main.js",
			Command:  []string{"node", "main.js"},
		},
		"go": {
			Image:    "golang:1.22-alpine",
			FileName: "main.go",
			Command:  []string{"sh", "-c", "go run main.go"},
		},
	}
}

// SandboxConfig carries execution limits shared by sandbox-backed executors.
type SandboxConfig struct {
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	WorkspaceRoot string
}

// RunCodeExecutor runs the action's checker code against the submission
// source inside a sandbox container.
type RunCodeExecutor struct {
	runner    sandbox.Runner
	languages map[string]LanguageConfig
	cfg       SandboxConfig
	logger    zerolog.Logger
}

// NewRunCodeExecutor constructs the run-code executor.
func NewRunCodeExecutor(runner sandbox.Runner, cfg SandboxConfig, logger zerolog.Logger) *RunCodeExecutor {
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}
	return &RunCodeExecutor{
		runner:    runner,
		languages: DefaultLanguages(),
		cfg:       cfg,
		logger:    logger.With().Str("component", "run_code_executor").Logger(),
	}
}

// Kind implements Executor.
func (e *RunCodeExecutor) Kind() models.ActionKind { return models.ActionKindRunCode }

// Execute writes the submission and the action's code into a workspace and
// runs the language entrypoint. The action's code, when present, wraps the
// submission; otherwise the submission runs on its own.
func (e *RunCodeExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	language := strings.ToLower(strings.TrimSpace(req.Context.Submission.Language))
	langCfg, ok := e.languages[language]
	if !ok {
		return Result{}, fmt.Errorf("unsupported language %q", language)
	}

	program := req.Context.Submission.Source
	if req.Action.Code != "" {
		program = joinProgram(req.Action.Imports, req.Context.Submission.Source, req.Action.Code)
	}

	result, runErr := e.runProgram(ctx, langCfg, program, "")
	out := Result{}
	if stdout := strings.TrimSpace(result.Stdout); stdout != "" {
		out.Text = append(out.Text, stdout)
	}
	if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
		out.Log = append(out.Log, stderr)
	}

	switch {
	case runErr != nil:
		out.Failed++
		out.Log = append(out.Log, runErr.Error())
	case result.ExitCode != 0:
		out.Failed++
		out.Log = append(out.Log, fmt.Sprintf("process exited with code %d", result.ExitCode))
	default:
		out.Passed++
	}

	return out, nil
}

func (e *RunCodeExecutor) runProgram(ctx context.Context, langCfg LanguageConfig, program, stdin string) (sandbox.RunResult, error) {
	workspace, err := os.MkdirTemp(e.cfg.WorkspaceRoot, "pipeline-")
	if err != nil {
		return sandbox.RunResult{}, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	if err := os.WriteFile(filepath.Join(workspace, langCfg.FileName), []byte(program), 0600); err != nil {
		return sandbox.RunResult{}, fmt.Errorf("write program: %w", err)
	}

	cmd := langCfg.Command
	if stdin != "" {
		if err := os.WriteFile(filepath.Join(workspace, "stdin.txt"), []byte(stdin), 0600); err != nil {
			return sandbox.RunResult{}, fmt.Errorf("write stdin: %w", err)
		}
		cmd = []string{"sh", "-c", strings.Join(langCfg.Command, " ") + " < stdin.txt"}
	}

	return e.runner.Run(ctx, sandbox.RunRequest{
		Image:         langCfg.Image,
		Cmd:           cmd,
		Timeout:       e.cfg.Timeout,
		Workspace:     workspace,
		WorkingDir:    "/workspace",
		MemoryLimitMB: e.cfg.MemoryLimitMB,
		CPUShares:     e.cfg.CPUShares,
	})
}

func joinProgram(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}
