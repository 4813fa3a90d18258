package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/AgentHub/internal/adapter/execrunner"
	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/message"
	"github.com/Strob0t/AgentHub/internal/domain/workflow"
	"github.com/Strob0t/AgentHub/internal/port/store"
)

// WorkflowService loads YAML workflow definitions and executes their
// step DAGs. A handoff step delegates to an account through the handoff
// engine; a command step runs an argv in its directory.
type WorkflowService struct {
	runs     store.WorkflowRuns
	handoffs *HandoffService
	runner   *execrunner.Runner
	dir      string // baseDir/workflows

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewWorkflowService creates a WorkflowService reading definitions from
// baseDir/workflows.
func NewWorkflowService(runs store.WorkflowRuns, handoffs *HandoffService, runner *execrunner.Runner, baseDir string) *WorkflowService {
	return &WorkflowService{
		runs:     runs,
		handoffs: handoffs,
		runner:   runner,
		dir:      filepath.Join(baseDir, "workflows"),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// ListDefinitions returns every parseable workflow definition.
func (s *WorkflowService) ListDefinitions() ([]workflow.Definition, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workflows dir: %w", err)
	}

	var defs []workflow.Definition
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		def, err := s.loadDefinition(filepath.Join(s.dir, name))
		if err != nil {
			slog.Warn("skipping invalid workflow", "file", name, "error", err)
			continue
		}
		defs = append(defs, *def)
	}
	return defs, nil
}

func (s *WorkflowService) loadDefinition(path string) (*workflow.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def workflow.Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// findDefinition resolves a workflow by its declared name.
func (s *WorkflowService) findDefinition(name string) (*workflow.Definition, error) {
	defs, err := s.ListDefinitions()
	if err != nil {
		return nil, err
	}
	for i := range defs {
		if defs[i].Name == name {
			return &defs[i], nil
		}
	}
	return nil, fmt.Errorf("workflow %q: %w", name, domain.ErrNotFound)
}

// Trigger starts a run of the named workflow on behalf of the account
// and executes it asynchronously. The run id is returned immediately.
func (s *WorkflowService) Trigger(ctx context.Context, account, name string) (*workflow.Run, error) {
	def, err := s.findDefinition(name)
	if err != nil {
		return nil, err
	}

	run := &workflow.Run{
		ID:        domain.NewID(),
		Workflow:  def.Name,
		Account:   account,
		Status:    workflow.RunRunning,
		Steps:     []workflow.StepResult{},
		StartedAt: time.Now().UTC(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	rctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[run.ID] = cancel
	s.mu.Unlock()

	go s.execute(rctx, def, run)
	return run, nil
}

// Status returns a run by id.
func (s *WorkflowService) Status(ctx context.Context, id string) (*workflow.Run, error) {
	return s.runs.Get(ctx, id)
}

// Cancel stops a running workflow. Cancelling a finished run is a no-op.
func (s *WorkflowService) Cancel(ctx context.Context, id string) error {
	run, err := s.runs.Get(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}

	if run.Status == workflow.RunRunning || run.Status == workflow.RunPending {
		run.Status = workflow.RunCancelled
		run.FinishedAt = time.Now().UTC()
		return s.runs.Update(ctx, run)
	}
	return nil
}

// execute walks the DAG in topological order; a failed step fails the
// run and skips everything downstream of it.
func (s *WorkflowService) execute(ctx context.Context, def *workflow.Definition, run *workflow.Run) {
	defer func() {
		s.mu.Lock()
		delete(s.cancels, run.ID)
		s.mu.Unlock()
	}()

	byName := make(map[string]*workflow.Step, len(def.Steps))
	for i := range def.Steps {
		byName[def.Steps[i].Name] = &def.Steps[i]
	}
	failed := make(map[string]bool)

	for _, name := range def.TopoOrder() {
		if ctx.Err() != nil {
			s.finishRun(run, workflow.RunCancelled, "cancelled")
			return
		}
		step := byName[name]

		skip := false
		for _, dep := range step.Needs {
			if failed[dep] {
				skip = true
				break
			}
		}
		if skip {
			failed[name] = true
			continue
		}

		result := s.runStep(ctx, run.Account, step)
		run.Steps = append(run.Steps, result)
		if result.Status != workflow.RunCompleted {
			failed[name] = true
		}
		if err := s.runs.Update(context.Background(), run); err != nil {
			slog.Warn("workflow run persist failed", "run_id", run.ID, "error", err)
		}
	}

	if ctx.Err() != nil {
		s.finishRun(run, workflow.RunCancelled, "cancelled")
		return
	}
	for _, step := range run.Steps {
		if step.Status == workflow.RunFailed {
			s.finishRun(run, workflow.RunFailed, "one or more steps failed")
			return
		}
	}
	s.finishRun(run, workflow.RunCompleted, "")
}

func (s *WorkflowService) runStep(ctx context.Context, account string, step *workflow.Step) workflow.StepResult {
	result := workflow.StepResult{Name: step.Name, StartedAt: time.Now().UTC()}

	switch {
	case step.Account != "":
		payload := &message.HandoffPayload{
			Goal:               step.Goal,
			AcceptanceCriteria: []string{"workflow step " + step.Name + " completed"},
			RunCommands:        []string{"true"},
			BlockedBy:          []string{"none"},
		}
		res, err := s.handoffs.HandoffTask(ctx, account, step.Account, payload, nil)
		if err != nil {
			result.Status = workflow.RunFailed
			result.Error = err.Error()
		} else {
			result.Status = workflow.RunCompleted
			result.Output = "handoff " + res.HandoffID
		}
	default:
		dir := step.Dir
		if dir == "" {
			dir = "."
		}
		// Step commands are argv arrays from the YAML definition; they
		// reach the subprocess verbatim, never through a re-parse.
		results, err := s.runner.RunAllArgv(ctx, dir, [][]string{step.Command})
		switch {
		case err != nil:
			result.Status = workflow.RunFailed
			result.Error = err.Error()
		case len(results) == 0 || !results[0].Passed():
			result.Status = workflow.RunFailed
			if len(results) > 0 {
				result.Output = results[0].Stdout
				result.Error = results[0].Stderr
			}
		default:
			result.Status = workflow.RunCompleted
			result.Output = results[0].Stdout
		}
	}

	result.FinishedAt = time.Now().UTC()
	return result
}

func (s *WorkflowService) finishRun(run *workflow.Run, status workflow.RunStatus, errMsg string) {
	run.Status = status
	run.Error = errMsg
	run.FinishedAt = time.Now().UTC()
	if err := s.runs.Update(context.Background(), run); err != nil {
		slog.Warn("workflow run finish persist failed", "run_id", run.ID, "error", err)
	}
}

// ListRuns returns recent runs.
func (s *WorkflowService) ListRuns(ctx context.Context, limit int) ([]workflow.Run, error) {
	return s.runs.List(ctx, limit)
}
