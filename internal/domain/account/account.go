// Package account defines the configured agent identity.
package account

import (
	"fmt"
	"regexp"
)

// Provider identifies the external coding CLI behind an account.
type Provider string

const (
	ProviderClaudeCode  Provider = "claude-code"
	ProviderCodexCLI    Provider = "codex-cli"
	ProviderOpenHands   Provider = "openhands"
	ProviderGeminiCLI   Provider = "gemini-cli"
	ProviderOpenCode    Provider = "opencode"
	ProviderCursorAgent Provider = "cursor-agent"
)

var validProviders = map[Provider]bool{
	ProviderClaudeCode:  true,
	ProviderCodexCLI:    true,
	ProviderOpenHands:   true,
	ProviderGeminiCLI:   true,
	ProviderOpenCode:    true,
	ProviderCursorAgent: true,
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,62}$`)

// Account is a configured external AI-agent identity. Accounts live in the
// config file, not in the daemon database; the shared secret lives in
// tokens/<name>.token next to it.
type Account struct {
	Name        string   `json:"name"`
	ConfigDir   string   `json:"configDir,omitempty"`
	Color       string   `json:"color,omitempty"`
	Label       string   `json:"label,omitempty"`
	Provider    Provider `json:"provider"`
	QuotaPolicy string   `json:"quotaPolicy,omitempty"`
}

// Validate checks the account name and provider.
func (a *Account) Validate() error {
	if !nameRe.MatchString(a.Name) {
		return fmt.Errorf("invalid account name %q", a.Name)
	}
	if a.Provider != "" && !validProviders[a.Provider] {
		return fmt.Errorf("unknown provider %q", a.Provider)
	}
	return nil
}
