package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/Strob0t/AgentHub/internal/config"
	"github.com/Strob0t/AgentHub/internal/domain/account"
)

// runAdmin dispatches admin subcommands (set-token, list-accounts,
// add-account, teardown-account).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "set-token":
		return runSetToken(args[1:])
	case "add-account":
		return runAddAccount(args[1:])
	case "list-accounts":
		return runListAccounts()
	case "teardown-account":
		return runTeardownAccount(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: agenthub admin <command> [options]

Commands:
  set-token          Write an account's shared secret (prompts when no --token)
  add-account        Add an account to config.json
  list-accounts      List configured accounts
  teardown-account   Remove an account and optionally purge its state
  help               Show this help message

Examples:
  agenthub admin add-account --name alice --provider claude-code
  agenthub admin set-token --name alice
  agenthub admin teardown-account --name alice --purge
`)
}

func runSetToken(args []string) error {
	fs := flag.NewFlagSet("set-token", flag.ContinueOnError)
	name := fs.String("name", "", "account name (required)")
	token := fs.String("token", "", "token value (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("--name is required")
	}
	acct := account.Account{Name: *name}
	if err := acct.Validate(); err != nil {
		return err
	}

	secret := *token
	if secret == "" {
		fmt.Fprintf(os.Stderr, "Token for %s: ", *name)
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		secret = strings.TrimSpace(string(raw))
	}
	if secret == "" {
		return fmt.Errorf("token must not be empty")
	}

	baseDir, err := config.BaseDir()
	if err != nil {
		return err
	}
	tokensDir := filepath.Join(baseDir, "tokens")
	if err := os.MkdirAll(tokensDir, 0o700); err != nil {
		return fmt.Errorf("mkdir tokens: %w", err)
	}
	path := filepath.Join(tokensDir, *name+".token")
	if err := os.WriteFile(path, []byte(secret), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	fmt.Println("token written:", path)
	return nil
}

func runAddAccount(args []string) error {
	fs := flag.NewFlagSet("add-account", flag.ContinueOnError)
	name := fs.String("name", "", "account name (required)")
	provider := fs.String("provider", "claude-code", "provider")
	label := fs.String("label", "", "display label")
	color := fs.String("color", "", "display color")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	acct := account.Account{
		Name:     *name,
		Provider: account.Provider(*provider),
		Label:    *label,
		Color:    *color,
	}
	if err := acct.Validate(); err != nil {
		return err
	}

	cfg, path, err := config.Load()
	if err != nil {
		return err
	}
	if _, exists := cfg.Account(*name); exists {
		return fmt.Errorf("account %q already exists", *name)
	}
	cfg.Accounts = append(cfg.Accounts, acct)
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Println("account added:", *name)
	return nil
}

func runListAccounts() error {
	cfg, _, err := config.Load()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPROVIDER\tLABEL")
	for _, a := range cfg.Accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.Name, a.Provider, a.Label)
	}
	return w.Flush()
}

func runTeardownAccount(args []string) error {
	fs := flag.NewFlagSet("teardown-account", flag.ContinueOnError)
	name := fs.String("name", "", "account name (required)")
	purge := fs.Bool("purge", false, "also delete the account's token and config dir")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	cfg, path, err := config.Load()
	if err != nil {
		return err
	}
	var kept []account.Account
	var removed *account.Account
	for i := range cfg.Accounts {
		if cfg.Accounts[i].Name == *name {
			removed = &cfg.Accounts[i]
			continue
		}
		kept = append(kept, cfg.Accounts[i])
	}
	if removed == nil {
		return fmt.Errorf("account %q not found", *name)
	}
	cfg.Accounts = kept
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Println("account removed:", *name)

	if !*purge {
		return nil
	}

	baseDir, err := config.BaseDir()
	if err != nil {
		return err
	}
	resolvedBase, err := filepath.EvalSymlinks(baseDir)
	if err != nil {
		return fmt.Errorf("resolve base dir: %w", err)
	}

	targets := []string{filepath.Join(baseDir, "tokens", *name+".token")}
	if removed.ConfigDir != "" {
		targets = append(targets, removed.ConfigDir)
	}
	for _, target := range targets {
		if err := purgePath(resolvedBase, target); err != nil {
			fmt.Fprintln(os.Stderr, "skipped:", err)
		}
	}
	return nil
}

// purgePath deletes target only when, after symlink resolution, it lies
// strictly under the base directory.
func purgePath(resolvedBase, target string) error {
	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("resolve %s: %w", target, err)
	}
	rel, err := filepath.Rel(resolvedBase, resolved)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%s is outside the base directory, refusing to purge", target)
	}
	return os.RemoveAll(resolved)
}
