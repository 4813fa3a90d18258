// Package config provides the daemon's versioned JSON configuration:
// load, migrate, save, and hot-reload.
package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Strob0t/AgentHub/internal/domain/account"
)

// CurrentVersion is the schema version written by this build.
const CurrentVersion = 3

// DefaultMaxDelegationDepth applies when neither the handler config nor
// the config file sets a limit.
const DefaultMaxDelegationDepth = 3

// Features is the closed set of optional feature flags.
type Features struct {
	WorkspaceWorktree bool `json:"workspaceWorktree,omitempty"`
	AutoAcceptance    bool `json:"autoAcceptance,omitempty"`
	CapabilityRouting bool `json:"capabilityRouting,omitempty"`
	SLAEngine         bool `json:"slaEngine,omitempty"`
	GitHubIntegration bool `json:"githubIntegration,omitempty"`
	ReviewBundles     bool `json:"reviewBundles,omitempty"`
	KnowledgeIndex    bool `json:"knowledgeIndex,omitempty"`
	Reliability       bool `json:"reliability,omitempty"`
	Workflow          bool `json:"workflow,omitempty"`
	Retro             bool `json:"retro,omitempty"`
	Sessions          bool `json:"sessions,omitempty"`
	Trust             bool `json:"trust,omitempty"`
	Council           bool `json:"council,omitempty"`
	CircuitBreaker    bool `json:"circuitBreaker,omitempty"`
	CognitiveFriction bool `json:"cognitiveFriction,omitempty"`
	EntireMonitoring  bool `json:"entireMonitoring,omitempty"`
}

// Defaults holds per-install default behaviour.
type Defaults struct {
	LaunchInNewWindow  bool   `json:"launchInNewWindow"`
	QuotaPolicy        string `json:"quotaPolicy,omitempty"`
	MaxDelegationDepth int    `json:"maxDelegationDepth,omitempty"`
}

// Entire holds the entire-session monitor toggle.
type Entire struct {
	AutoEnable bool `json:"autoEnable"`
}

// DelegationDepth carries the explicit depth limit; it wins over
// Defaults.MaxDelegationDepth.
type DelegationDepth struct {
	MaxDepth int `json:"maxDepth,omitempty"`
}

// Notifications holds OS notification settings (delivery is external).
type Notifications struct {
	Enabled bool     `json:"enabled"`
	Events  []string `json:"events,omitempty"`
}

// GitHub holds the fire-and-forget integration target.
type GitHub struct {
	Repo     string `json:"repo,omitempty"`
	APIBase  string `json:"apiBase,omitempty"`
	TokenEnv string `json:"tokenEnv,omitempty"`
}

// CouncilReviewer is one external reviewer command (argv form).
type CouncilReviewer struct {
	Name    string   `json:"name"`
	Command []string `json:"command"`
}

// Council configures the multi-model review orchestration.
type Council struct {
	Reviewers      []CouncilReviewer `json:"reviewers,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty"`
	Quorum         int               `json:"quorum,omitempty"`
}

// Logging mirrors the daemon log setup.
type Logging struct {
	Level   string `json:"level,omitempty"`
	Service string `json:"service,omitempty"`
	Async   bool   `json:"async,omitempty"`
}

// Config is the versioned daemon configuration. Unknown top-level keys
// found in the file are preserved across load/save round trips.
type Config struct {
	SchemaVersion   int               `json:"schemaVersion"`
	Accounts        []account.Account `json:"accounts"`
	Entire          Entire            `json:"entire"`
	Notifications   *Notifications    `json:"notifications,omitempty"`
	GitHub          *GitHub           `json:"github,omitempty"`
	Features        *Features         `json:"features,omitempty"`
	Defaults        Defaults          `json:"defaults"`
	DelegationDepth *DelegationDepth  `json:"delegationDepth,omitempty"`
	Council         *Council          `json:"council,omitempty"`
	Logging         Logging           `json:"logging"`

	extra map[string]json.RawMessage
}

// NewDefaults returns the built-in configuration.
func NewDefaults() *Config {
	return &Config{
		SchemaVersion: CurrentVersion,
		Accounts:      []account.Account{},
		Defaults: Defaults{
			LaunchInNewWindow:  false,
			QuotaPolicy:        "balanced",
			MaxDelegationDepth: DefaultMaxDelegationDepth,
		},
		Logging: Logging{Level: "info", Service: "agenthub"},
	}
}

// FeatureEnabled reports a flag by its wire name.
func (c *Config) FeatureEnabled(name string) bool {
	if c.Features == nil {
		return false
	}
	switch name {
	case "workspaceWorktree":
		return c.Features.WorkspaceWorktree
	case "autoAcceptance":
		return c.Features.AutoAcceptance
	case "capabilityRouting":
		return c.Features.CapabilityRouting
	case "slaEngine":
		return c.Features.SLAEngine
	case "githubIntegration":
		return c.Features.GitHubIntegration
	case "reviewBundles":
		return c.Features.ReviewBundles
	case "knowledgeIndex":
		return c.Features.KnowledgeIndex
	case "reliability":
		return c.Features.Reliability
	case "workflow":
		return c.Features.Workflow
	case "retro":
		return c.Features.Retro
	case "sessions":
		return c.Features.Sessions
	case "trust":
		return c.Features.Trust
	case "council":
		return c.Features.Council
	case "circuitBreaker":
		return c.Features.CircuitBreaker
	case "cognitiveFriction":
		return c.Features.CognitiveFriction
	case "entireMonitoring":
		return c.Features.EntireMonitoring
	}
	return false
}

// MaxDelegationDepth resolves the depth limit. Precedence: explicit
// override (handler config) > delegationDepth.maxDepth > defaults >
// built-in default.
func (c *Config) MaxDelegationDepth(override int) int {
	if override > 0 {
		return override
	}
	if c.DelegationDepth != nil && c.DelegationDepth.MaxDepth > 0 {
		return c.DelegationDepth.MaxDepth
	}
	if c.Defaults.MaxDelegationDepth > 0 {
		return c.Defaults.MaxDelegationDepth
	}
	return DefaultMaxDelegationDepth
}

// Account looks up a configured account by name.
func (c *Config) Account(name string) (*account.Account, bool) {
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i], true
		}
	}
	return nil, false
}

// knownKeys are the top-level JSON keys the struct owns; everything else
// is preserved verbatim in extra.
var knownKeys = map[string]bool{
	"schemaVersion": true, "accounts": true, "entire": true,
	"notifications": true, "github": true, "features": true,
	"defaults": true, "delegationDepth": true, "council": true,
	"logging": true,
}

// UnmarshalJSON decodes known fields and stashes unknown keys.
func (c *Config) UnmarshalJSON(data []byte) error {
	type alias Config
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Config(a)
	for k, v := range raw {
		if !knownKeys[k] {
			if c.extra == nil {
				c.extra = make(map[string]json.RawMessage)
			}
			c.extra[k] = v
		}
	}
	return nil
}

// MarshalJSON emits known fields plus preserved unknown keys.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(*c)
	data, err := json.Marshal(&a)
	if err != nil {
		return nil, err
	}
	if len(c.extra) == 0 {
		return data, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range c.extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Canonical returns a stable serialised form used by the watcher to
// suppress reloads for equivalent re-saves.
func (c *Config) Canonical() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("canonicalise config: %w", err)
	}
	return string(data), nil
}

// Holder provides thread-safe access to a Config with hot-reload
// support. A reload swaps the whole *Config pointer, so readers see
// updates only by calling Get again.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewHolder wraps an initial Config and the file path used for reloads.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Get returns the current Config. Callers must not retain the pointer
// across reloads; read values immediately.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Path returns the config file path.
func (h *Holder) Path() string { return h.path }

// Reload re-reads the file and swaps the config. On load failure the old
// config is preserved.
func (h *Holder) Reload() error {
	cfg, err := LoadFrom(h.path)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
	return nil
}

// Replace swaps in an already-loaded config (used by the watcher).
func (h *Holder) Replace(cfg *Config) {
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
}
