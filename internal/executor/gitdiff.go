package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/pkg/sandbox"
)

const gitImage = "alpine/git:latest"

// GitDiffCheckExecutor clones the action's repository in a sandbox container
// and diffs the tracked file at the action's path against the submission
// source. Clone output is cached per (url, branch) and reused until the
// action requests a cache override.
type GitDiffCheckExecutor struct {
	runner sandbox.Runner
	cfg    SandboxConfig
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[string]gitFileEntry
}

type gitFileEntry struct {
	content   string
	fetchedAt time.Time
}

// NewGitDiffCheckExecutor constructs the git-diff executor.
func NewGitDiffCheckExecutor(runner sandbox.Runner, cfg SandboxConfig, logger zerolog.Logger) *GitDiffCheckExecutor {
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}
	return &GitDiffCheckExecutor{
		runner: runner,
		cfg:    cfg,
		logger: logger.With().Str("component", "git_diff_executor").Logger(),
		cache:  make(map[string]gitFileEntry),
	}
}

// Kind implements Executor.
func (e *GitDiffCheckExecutor) Kind() models.ActionKind { return models.ActionKindGitDiffCheck }

// Execute fetches the reference file from git and compares it with the
// submission source. A non-empty diff is a failed check.
func (e *GitDiffCheckExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	action := req.Action
	if action.GitURL == "" {
		return Result{}, fmt.Errorf("git diff check has no repository url")
	}
	path := action.Path
	if path == "" {
		return Result{}, fmt.Errorf("git diff check has no file path")
	}

	reference, err := e.fetchFile(ctx, action)
	if err != nil {
		return Result{
			Failed: 1,
			Log:    []string{fmt.Sprintf("git fetch failed: %s", err.Error())},
		}, nil
	}

	out := Result{}
	if strings.TrimSpace(reference) == strings.TrimSpace(req.Context.Submission.Source) {
		out.Passed++
		if action.Text != "" {
			out.Text = append(out.Text, action.Text)
		}
		return out, nil
	}

	out.Failed++
	if action.TextOnMismatch != "" {
		out.Text = append(out.Text, action.TextOnMismatch)
	} else {
		out.Text = append(out.Text, fmt.Sprintf("submission differs from %s on branch %s", path, branchOf(action)))
	}
	return out, nil
}

func (e *GitDiffCheckExecutor) fetchFile(ctx context.Context, action models.Action) (string, error) {
	key := action.GitURL + "#" + branchOf(action) + "#" + action.Path

	if !action.ForceOverrideCache {
		e.mu.Lock()
		entry, hit := e.cache[key]
		e.mu.Unlock()
		if hit {
			return entry.content, nil
		}
	}

	workspace, err := os.MkdirTemp(e.cfg.WorkspaceRoot, "gitdiff-")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	env := []string{}
	script := fmt.Sprintf(
		"git clone --quiet --depth 1 --branch %s %s repo && cat repo/%s",
		shellQuote(branchOf(action)), shellQuote(action.GitURL), shellQuote(action.Path),
	)
	if action.GitPrivateKey != "" {
		keyPath := filepath.Join(workspace, "deploy_key")
		if err := os.WriteFile(keyPath, []byte(action.GitPrivateKey), 0600); err != nil {
			return "", fmt.Errorf("write deploy key: %w", err)
		}
		env = append(env, "GIT_SSH_COMMAND=ssh -i /workspace/deploy_key -o StrictHostKeyChecking=no")
	}

	run, err := e.runner.Run(ctx, sandbox.RunRequest{
		Image:         gitImage,
		Cmd:           []string{"sh", "-c", script},
		Env:           env,
		Timeout:       e.cfg.Timeout,
		Workspace:     workspace,
		WorkingDir:    "/workspace",
		MemoryLimitMB: e.cfg.MemoryLimitMB,
		CPUShares:     e.cfg.CPUShares,
		AllowNetwork:  true,
	})
	if err != nil {
		return "", err
	}
	if run.ExitCode != 0 {
		return "", fmt.Errorf("git exited with code %d: %s", run.ExitCode, strings.TrimSpace(run.Stderr))
	}

	e.mu.Lock()
	e.cache[key] = gitFileEntry{content: run.Stdout, fetchedAt: time.Now()}
	e.mu.Unlock()

	return run.Stdout, nil
}

func branchOf(action models.Action) string {
	if action.GitBranch != "" {
		return action.GitBranch
	}
	return "main"
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}
