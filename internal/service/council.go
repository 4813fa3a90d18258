package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/AgentHub/internal/adapter/cache"
	"github.com/Strob0t/AgentHub/internal/adapter/execrunner"
	"github.com/Strob0t/AgentHub/internal/adapter/jsonfile"
	"github.com/Strob0t/AgentHub/internal/config"
)

// councilCacheTTL bounds how long a verdict is served from memory.
const councilCacheTTL = time.Hour

// CouncilVerdict is one reviewer's opinion.
type CouncilVerdict struct {
	Reviewer string `json:"reviewer"`
	Approve  bool   `json:"approve"`
	Output   string `json:"output"`
	Err      string `json:"error,omitempty"`
}

// CouncilResult aggregates a council round.
type CouncilResult struct {
	Prompt    string           `json:"prompt"`
	Verdicts  []CouncilVerdict `json:"verdicts"`
	Approved  bool             `json:"approved"`
	Quorum    int              `json:"quorum"`
	Cached    bool             `json:"cached"`
	Timestamp time.Time        `json:"timestamp"`
}

// CouncilService fans a prompt out to the configured reviewer commands
// and aggregates their verdicts. Only the orchestration contract lives
// here; reviewers are external argv commands that receive the prompt as
// their final argument and exit zero to approve.
type CouncilService struct {
	holder *config.Holder
	cache  *cache.Cache
	file   *jsonfile.KVStore // council verdict cache persisted across restarts

	mu      sync.Mutex
	history []CouncilResult
}

// NewCouncilService creates a CouncilService. cache and file may be nil.
func NewCouncilService(holder *config.Holder, c *cache.Cache, file *jsonfile.KVStore) *CouncilService {
	return &CouncilService{holder: holder, cache: c, file: file}
}

// Analyze runs the council over a prompt, serving repeated prompts from
// the content-hash cache.
func (s *CouncilService) Analyze(ctx context.Context, prompt string) (*CouncilResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	council := s.holder.Get().Council
	if council == nil || len(council.Reviewers) == 0 {
		return nil, fmt.Errorf("no council reviewers configured")
	}

	key := cacheKey(prompt)
	if res, ok := s.cached(key); ok {
		res.Cached = true
		return res, nil
	}

	timeout := 2 * time.Minute
	if council.TimeoutSeconds > 0 {
		timeout = time.Duration(council.TimeoutSeconds) * time.Second
	}

	verdicts := make([]CouncilVerdict, len(council.Reviewers))
	var wg sync.WaitGroup
	for i, reviewer := range council.Reviewers {
		wg.Add(1)
		go func(i int, r config.CouncilReviewer) {
			defer wg.Done()
			verdicts[i] = runReviewer(ctx, r, prompt, timeout)
		}(i, reviewer)
	}
	wg.Wait()

	quorum := council.Quorum
	if quorum <= 0 {
		quorum = len(council.Reviewers)/2 + 1
	}
	approvals := 0
	for _, v := range verdicts {
		if v.Approve {
			approvals++
		}
	}

	res := &CouncilResult{
		Prompt:    prompt,
		Verdicts:  verdicts,
		Approved:  approvals >= quorum,
		Quorum:    quorum,
		Timestamp: time.Now().UTC(),
	}
	s.remember(key, res)
	return res, nil
}

// Verify is Analyze with a verification framing; it shares the cache.
func (s *CouncilService) Verify(ctx context.Context, taskID, specPayload string) (*CouncilResult, error) {
	prompt := fmt.Sprintf("Verify that the following task outcome satisfies its acceptance criteria.\ntask: %s\n%s", taskID, specPayload)
	return s.Analyze(ctx, prompt)
}

// History returns recent council rounds, newest first.
func (s *CouncilService) History(limit int) []CouncilResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]CouncilResult, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.history[len(s.history)-1-i]
	}
	return out
}

func runReviewer(ctx context.Context, r config.CouncilReviewer, prompt string, timeout time.Duration) CouncilVerdict {
	v := CouncilVerdict{Reviewer: r.Name}
	if len(r.Command) == 0 {
		v.Err = "reviewer has no command"
		return v
	}

	runner := execrunner.New()
	runner.CommandTimeout = timeout

	// Reviewer commands are configured argv arrays; the prompt travels
	// as the final argv element, never through a shell or a re-parse.
	argv := append(append([]string(nil), r.Command...), prompt)
	results, err := runner.RunAllArgv(ctx, ".", [][]string{argv})
	if err != nil || len(results) == 0 {
		v.Err = fmt.Sprintf("reviewer failed to start: %v", err)
		return v
	}
	res := results[0]
	v.Approve = res.Passed()
	v.Output = res.Stdout
	if res.Stderr != "" {
		v.Err = res.Stderr
	}
	return v
}

func cacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

func (s *CouncilService) cached(key string) (*CouncilResult, bool) {
	if s.cache != nil {
		if data, ok := s.cache.Get(key); ok {
			var res CouncilResult
			if err := json.Unmarshal(data, &res); err == nil {
				return &res, true
			}
		}
	}
	if s.file != nil {
		if raw, ok := s.file.Get(key); ok {
			var res CouncilResult
			if err := json.Unmarshal([]byte(raw), &res); err == nil {
				return &res, true
			}
		}
	}
	return nil, false
}

// remember stores the result in memory, the cache, and the persistent
// cache file. Persistence is best-effort.
func (s *CouncilService) remember(key string, res *CouncilResult) {
	s.mu.Lock()
	s.history = append(s.history, *res)
	if len(s.history) > 200 {
		s.history = s.history[len(s.history)-200:]
	}
	s.mu.Unlock()

	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if s.cache != nil {
		s.cache.Set(key, data, councilCacheTTL)
	}
	if s.file != nil {
		if err := s.file.Set(key, string(data)); err != nil {
			slog.Warn("council cache persist failed", "error", err)
		}
	}
}
